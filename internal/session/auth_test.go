package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wanderkit/wander/internal/domain"
)

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"token":   "tok-1",
				"user_id": "u1",
				"email":   req.Email,
			})
		case "/signup":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"user_id": "u1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSignInTransitionsAndPersists(t *testing.T) {
	ts := newAuthServer(t)

	var persisted *domain.Session
	var persistedToken string
	a := NewRemoteAuth(ts.Client(), ts.URL, nil, "", func(s *domain.Session, token string) {
		persisted = s
		persistedToken = token
	})

	var seen []*domain.Session
	unsub := a.OnSessionChange(func(s *domain.Session) { seen = append(seen, s) })
	defer unsub()

	if len(seen) != 1 || seen[0] != nil {
		t.Fatalf("expected immediate nil delivery, got %v", seen)
	}

	if err := a.SignIn("me@example.com", "secret"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if len(seen) != 2 || seen[1] == nil || seen[1].IdentityID != "u1" {
		t.Fatalf("expected sign-in transition, got %v", seen)
	}
	if a.Token() != "tok-1" {
		t.Fatalf("Token() = %q", a.Token())
	}
	if persisted == nil || persisted.IdentityID != "u1" || persistedToken != "tok-1" {
		t.Fatal("session not persisted on sign-in")
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	ts := newAuthServer(t)
	a := NewRemoteAuth(ts.Client(), ts.URL, nil, "", nil)
	if err := a.SignIn("me@example.com", "wrong"); err == nil {
		t.Fatal("expected credential error")
	}
	if a.Current() != nil {
		t.Fatal("failed sign-in must not create a session")
	}
}

func TestSignOutClearsSession(t *testing.T) {
	saved := &domain.Session{IdentityID: "u1", Email: "me@example.com"}
	a := NewRemoteAuth(nil, "http://unused", saved, "tok-1", nil)

	var seen []*domain.Session
	defer a.OnSessionChange(func(s *domain.Session) { seen = append(seen, s) })()

	if err := a.SignOut(); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if a.Current() != nil || a.Token() != "" {
		t.Fatal("sign-out left session state behind")
	}
	if len(seen) != 2 || seen[1] != nil {
		t.Fatalf("expected sign-out transition, got %v", seen)
	}
}

func TestSignOutWithoutSession(t *testing.T) {
	a := NewRemoteAuth(nil, "http://unused", nil, "", nil)
	if err := a.SignOut(); err != ErrNotSignedIn {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestOnSessionChangeUnsubscribe(t *testing.T) {
	a := NewRemoteAuth(nil, "http://unused", &domain.Session{IdentityID: "u1"}, "tok", nil)
	var calls int
	unsub := a.OnSessionChange(func(*domain.Session) { calls++ })
	unsub()
	_ = a.SignOut()
	if calls != 1 {
		t.Fatalf("callback ran after unsubscribe: %d calls", calls)
	}
}
