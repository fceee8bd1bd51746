package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, userID, name string, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestCurrentUserLoggedOut(t *testing.T) {
	s := NewStore(&Args{Host: "http://unused"})
	if s.CurrentUser() != nil {
		t.Error("expected nil user before login")
	}
}

func TestSetTokenDerivesUser(t *testing.T) {
	s := NewStore(&Args{Host: "http://unused"})

	token := signToken(t, "u1", "hailey", time.Now().Add(time.Hour))
	if err := s.SetToken(token); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	user := s.CurrentUser()
	if user == nil {
		t.Fatal("expected a user after SetToken")
	}
	if user.UserID != "u1" || user.Name != "hailey" {
		t.Errorf("unexpected user: %+v", user)
	}
	if s.Token() != token {
		t.Error("expected Token() to return the installed token")
	}
}

func TestExpiredTokenYieldsNilUser(t *testing.T) {
	s := NewStore(&Args{Host: "http://unused"})

	token := signToken(t, "u1", "hailey", time.Now().Add(-time.Minute))
	if err := s.SetToken(token); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	if user := s.CurrentUser(); user != nil {
		t.Errorf("expected nil user for expired session, got %+v", user)
	}
}

func TestLogin(t *testing.T) {
	token := signToken(t, "u1", "hailey", time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "h@example.com" {
			t.Errorf("unexpected login payload: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}))
	defer srv.Close()

	s := NewStore(&Args{Host: srv.URL})
	if err := s.Login(context.Background(), "h@example.com", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	user := s.CurrentUser()
	if user == nil || user.UserID != "u1" {
		t.Errorf("unexpected user after login: %+v", user)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewStore(&Args{Host: srv.URL})
	if err := s.Login(context.Background(), "h@example.com", "wrong"); err == nil {
		t.Error("expected an error for rejected login")
	}
	if s.CurrentUser() != nil {
		t.Error("expected no session after rejected login")
	}
}

func TestRefreshUpdatesSnapshot(t *testing.T) {
	token := signToken(t, "u1", "hailey", time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/current" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"user_id": "u1",
			"name":    "hailey",
			"bio":     "updated bio",
			"image":   "obj-9",
		})
	}))
	defer srv.Close()

	s := NewStore(&Args{Host: srv.URL})
	if err := s.SetToken(token); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	user := s.CurrentUser()
	if user == nil {
		t.Fatal("expected a user after refresh")
	}
	if user.Bio != "updated bio" || user.Image != "obj-9" {
		t.Errorf("snapshot not updated: %+v", user)
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	s := NewStore(&Args{Host: "http://unused"})
	if err := s.Refresh(context.Background()); err == nil {
		t.Error("expected an error refreshing without a session")
	}
}

func TestLogout(t *testing.T) {
	s := NewStore(&Args{Host: "http://unused"})

	token := signToken(t, "u1", "hailey", time.Now().Add(time.Hour))
	if err := s.SetToken(token); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	s.Logout()

	if s.CurrentUser() != nil {
		t.Error("expected nil user after logout")
	}
	if s.Token() != "" {
		t.Error("expected empty token after logout")
	}
}
