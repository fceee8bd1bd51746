package clipfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haileyok/clipfeed/models"
)

// fakeGateway is an in-memory RecordGateway with call counting and
// injectable failures.
type fakeGateway struct {
	mu      sync.Mutex
	nextID  int
	records []models.Record

	createErr error
	updateErr error
	deleteErr error
	listErr   error
	uploadErr error

	createCalls int
	updateCalls int
	deleteCalls int
	listCalls   int
	uploadCalls int

	deletedIDs  []string
	lastUpload  []byte
	lastUpdate  map[string]any
	lastUpdated string

	// listFn overrides ListRecords entirely when set.
	listFn func(kind string, filter RecordFilter) ([]models.Record, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) seed(kind string, payload map[string]any) models.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insert(kind, payload)
}

// insert assumes g.mu is held.
func (g *fakeGateway) insert(kind string, payload map[string]any) models.Record {
	g.nextID++
	raw, _ := json.Marshal(payload)
	rec := models.Record{
		ID:        fmt.Sprintf("r%d", g.nextID),
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	g.records = append(g.records, rec)
	return rec
}

func (g *fakeGateway) CreateRecord(ctx context.Context, kind string, payload map[string]any) (*models.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}

	rec := g.insert(kind, payload)
	return &rec, nil
}

func (g *fakeGateway) UpdateRecord(ctx context.Context, kind, id string, payload map[string]any) (*models.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.updateCalls++
	if g.updateErr != nil {
		return nil, g.updateErr
	}

	g.lastUpdated = kind + "/" + id
	g.lastUpdate = payload

	for i, rec := range g.records {
		if rec.Kind == kind && rec.ID == id {
			var merged map[string]any
			json.Unmarshal(rec.Payload, &merged)
			if merged == nil {
				merged = make(map[string]any)
			}
			for k, v := range payload {
				merged[k] = v
			}
			raw, _ := json.Marshal(merged)
			g.records[i].Payload = raw
			out := g.records[i]
			return &out, nil
		}
	}

	rec := models.Record{ID: id, Kind: kind, CreatedAt: time.Now().UTC()}
	rec.Payload, _ = json.Marshal(payload)
	return &rec, nil
}

func (g *fakeGateway) ListRecords(ctx context.Context, kind string, filter RecordFilter) ([]models.Record, error) {
	if g.listFn != nil {
		return g.listFn(kind, filter)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}

	out := make([]models.Record, 0)
	for _, rec := range g.records {
		if rec.Kind != kind {
			continue
		}
		if filter.PostID != "" {
			var payload map[string]any
			json.Unmarshal(rec.Payload, &payload)
			if v, _ := payload["post_id"].(string); v != filter.PostID {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *fakeGateway) DeleteRecord(ctx context.Context, kind, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.deleteCalls++
	if g.deleteErr != nil {
		return g.deleteErr
	}

	g.deletedIDs = append(g.deletedIDs, kind+"/"+id)
	for i, rec := range g.records {
		if rec.Kind == kind && rec.ID == id {
			g.records = append(g.records[:i], g.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *fakeGateway) UploadObject(ctx context.Context, name string, blob []byte) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.uploadCalls++
	if g.uploadErr != nil {
		return "", g.uploadErr
	}

	g.lastUpload = blob
	return fmt.Sprintf("obj-%d", g.uploadCalls), nil
}

func (g *fakeGateway) DeleteObject(ctx context.Context, objectID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletedIDs = append(g.deletedIDs, "object/"+objectID)
	return nil
}

func (g *fakeGateway) ResolveObjectURL(objectID string) string {
	return "https://objects.test/" + objectID
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls + g.updateCalls + g.deleteCalls + g.listCalls + g.uploadCalls
}

// fakeSession is a Session with a settable user.
type fakeSession struct {
	mu           sync.Mutex
	user         *models.UserSession
	refreshCalls int
	refreshErr   error
}

func (s *fakeSession) CurrentUser() *models.UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *fakeSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	return s.refreshErr
}

// fakePlayer records play/pause actions in order.
type fakePlayer struct {
	mu      sync.Mutex
	actions []string
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "play")
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "pause")
}

func (p *fakePlayer) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.actions))
	copy(out, p.actions)
	return out
}

func equalActions(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func commentPayload(userID, postID, text string) map[string]any {
	return map[string]any{
		"user_id":    userID,
		"post_id":    postID,
		"text":       text,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func likePayload(userID, postID string) map[string]any {
	return map[string]any{
		"user_id":    userID,
		"post_id":    postID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
}
