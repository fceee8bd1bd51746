// Package session holds the logged-in user's token and profile view.
// The core only depends on CurrentUser to gate mutations and on Refresh
// after profile changes; login and register exist for the binaries.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/haileyok/clipfeed"
	"github.com/haileyok/clipfeed/models"
)

type Store struct {
	cli    *http.Client
	host   string
	logger *slog.Logger

	mu    sync.Mutex
	token string
	user  *models.UserSession
}

type Args struct {
	Host    string
	Logger  *slog.Logger
	Timeout time.Duration
}

func NewStore(args *Args) *Store {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	timeout := args.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Store{
		cli: &http.Client{
			Timeout: timeout,
		},
		host:   args.Host,
		logger: args.Logger,
	}
}

var _ clipfeed.Session = (*Store)(nil)

// claims is what the gateway signs into session tokens. The client
// parses without verifying: it has no signing secret, and an altered
// token only breaks the holder's own requests.
type claims struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	jwt.RegisteredClaims
}

// CurrentUser returns the session snapshot, or nil when logged out or
// expired.
func (s *Store) CurrentUser() *models.UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil
	}
	if !s.user.ExpiresAt.IsZero() && time.Now().After(s.user.ExpiresAt) {
		return nil
	}

	u := *s.user
	return &u
}

// Token returns the raw session token for the gateway's Authorization
// header. Empty when logged out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Store) Login(ctx context.Context, email, password string) error {
	return s.obtainToken(ctx, "/v1/sessions", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (s *Store) Register(ctx context.Context, name, email, password string) error {
	return s.obtainToken(ctx, "/v1/users", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Refresh re-fetches the user's own profile representation. Called by
// the core after profile mutations so the session snapshot matches the
// stored record.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return fmt.Errorf("no active session")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.host+"/v1/sessions/current", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("session refresh returned non-200 response code: %d", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
		Bio    string `json:"bio"`
		Image  string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return fmt.Errorf("session expired during refresh")
	}

	s.user.Name = body.Name
	s.user.Bio = body.Bio
	s.user.Image = body.Image

	return nil
}

func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
}

// SetToken installs a token obtained out of band (tests, stored
// sessions) and derives the user snapshot from its claims.
func (s *Store) SetToken(token string) error {
	user, err := userFromToken(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user

	return nil
}

func (s *Store) obtainToken(ctx context.Context, path string, payload map[string]string) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.host+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s returned non-200 response code: %d", path, resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	user, err := userFromToken(body.Token)
	if err != nil {
		return fmt.Errorf("failed to parse session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = body.Token
	s.user = user

	s.logger.Info("session established", "user", user.UserID)

	return nil
}

func userFromToken(token string) (*models.UserSession, error) {
	var cl claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &cl); err != nil {
		return nil, err
	}

	if cl.Subject == "" {
		return nil, fmt.Errorf("session token has no subject")
	}

	user := &models.UserSession{
		UserID: cl.Subject,
		Name:   cl.Name,
		Image:  cl.Image,
	}
	if cl.ExpiresAt != nil {
		user.ExpiresAt = cl.ExpiresAt.Time
	}

	return user, nil
}
