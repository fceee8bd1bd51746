package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/haileyok/clipfeed/models"
)

type simUser struct {
	id       string
	name     string
	email    string
	password string
}

type server struct {
	logger *slog.Logger
	secret []byte

	mu      sync.Mutex
	records map[string]models.Record
	objects map[string][]byte
	users   map[string]simUser
	seq     int64

	subsMu sync.Mutex
	subs   map[*websocket.Conn]bool

	upgrader websocket.Upgrader
}

type claims struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	jwt.RegisteredClaims
}

func newServer(logger *slog.Logger, secret []byte) *server {
	return &server{
		logger:  logger,
		secret:  secret,
		records: make(map[string]models.Record),
		objects: make(map[string][]byte),
		users:   make(map[string]simUser),
		subs:    make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *server) listen(addr string) error {
	r := mux.NewRouter()

	r.HandleFunc("/v1/users", s.handleRegister).Methods("POST")
	r.HandleFunc("/v1/sessions", s.handleLogin).Methods("POST")
	r.HandleFunc("/v1/sessions/current", s.handleCurrentSession).Methods("GET")

	r.HandleFunc("/v1/records/{kind}", s.handleCreateRecord).Methods("POST")
	r.HandleFunc("/v1/records/{kind}", s.handleListRecords).Methods("GET")
	r.HandleFunc("/v1/records/{kind}/{id}", s.handleUpdateRecord).Methods("PATCH")
	r.HandleFunc("/v1/records/{kind}/{id}", s.handleDeleteRecord).Methods("DELETE")

	r.HandleFunc("/v1/objects", s.handleUploadObject).Methods("POST")
	r.HandleFunc("/v1/objects/{id}/view", s.handleViewObject).Methods("GET")
	r.HandleFunc("/v1/objects/{id}", s.handleDeleteObject).Methods("DELETE")

	r.HandleFunc("/v1/realtime", s.handleRealtime).Methods("GET")

	return http.ListenAndServe(addr, r)
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Email == "" || body.Password == "" {
		http.Error(w, "name, email and password are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, exists := s.users[body.Email]; exists {
		s.mu.Unlock()
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}

	user := simUser{
		id:       uuid.NewString(),
		name:     body.Name,
		email:    body.Email,
		password: body.Password,
	}
	s.users[body.Email] = user

	payload, _ := json.Marshal(map[string]any{
		"user_id": user.id,
		"name":    user.name,
		"bio":     "",
		"image":   "",
	})
	profile := models.Record{
		ID:        user.id,
		Kind:      models.KindProfile,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	s.records[recordKey(models.KindProfile, profile.ID)] = profile
	s.mu.Unlock()

	s.logger.Info("registered user", "user", user.id, "name", user.name)

	s.writeToken(w, user)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	user, ok := s.users[body.Email]
	s.mu.Unlock()

	if !ok || user.password != body.Password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	s.writeToken(w, user)
}

func (s *server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	rec, ok := s.records[recordKey(models.KindProfile, userID)]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}

	var profile map[string]any
	if err := json.Unmarshal(rec.Payload, &profile); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (s *server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec := models.Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.records[recordKey(kind, rec.ID)] = rec
	s.mu.Unlock()

	s.broadcast(kind, "create", stringField(payload, "post_id"))

	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	postID := r.URL.Query().Get("post_id")

	s.mu.Lock()
	out := make([]models.Record, 0)
	for _, rec := range s.records {
		if rec.Kind != kind {
			continue
		}
		if postID != "" {
			var payload map[string]any
			if err := json.Unmarshal(rec.Payload, &payload); err != nil {
				continue
			}
			if stringField(payload, "post_id") != postID {
				continue
			}
		}
		out = append(out, rec)
	}
	s.mu.Unlock()

	// Creation time descending, the ordering the client contract expects.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, id := vars["kind"], vars["id"]

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rec, ok := s.records[recordKey(kind, id)]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		s.mu.Unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for k, v := range patch {
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.mu.Unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rec.Payload = raw
	s.records[recordKey(kind, id)] = rec
	s.mu.Unlock()

	s.broadcast(kind, "update", stringField(payload, "post_id"))

	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, id := vars["kind"], vars["id"]

	s.mu.Lock()
	rec, ok := s.records[recordKey(kind, id)]
	if ok {
		delete(s.records, recordKey(kind, id))
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}

	var payload map[string]any
	json.Unmarshal(rec.Payload, &payload)
	s.broadcast(kind, "delete", stringField(payload, "post_id"))

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUploadObject(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.objects[id] = blob
	s.mu.Unlock()

	s.logger.Debug("stored object", "object", id, "name", r.URL.Query().Get("name"), "bytes", len(blob))

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *server) handleViewObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	blob, ok := s.objects[id]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(blob)
}

func (s *server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	_, ok := s.objects[id]
	delete(s.objects, id)
	s.mu.Unlock()

	if !ok {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	con, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s.subsMu.Lock()
	s.subs[con] = true
	s.subsMu.Unlock()

	s.logger.Info("realtime subscriber connected", "remote", con.RemoteAddr().String())

	// Reads are discarded; the stream is one-way. A read error means the
	// subscriber went away.
	go func() {
		for {
			if _, _, err := con.ReadMessage(); err != nil {
				s.subsMu.Lock()
				delete(s.subs, con)
				s.subsMu.Unlock()
				con.Close()
				return
			}
		}
	}()
}

func (s *server) broadcast(kind, action, postID string) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	evt := map[string]any{
		"seq":     seq,
		"action":  action,
		"kind":    kind,
		"post_id": postID,
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for con := range s.subs {
		if err := con.WriteJSON(evt); err != nil {
			delete(s.subs, con)
			con.Close()
		}
	}
}

func (s *server) writeToken(w http.ResponseWriter, user simUser) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: user.name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

func (s *server) authenticate(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return "", fmt.Errorf("missing bearer token")
	}

	var cl claims
	_, err := jwt.ParseWithClaims(auth[len(prefix):], &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	return cl.Subject, nil
}

func recordKey(kind, id string) string {
	return kind + "/" + id
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
