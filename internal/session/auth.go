package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wanderkit/wander/internal/domain"
)

// ErrNotSignedIn is returned by SignOut without an active session.
var ErrNotSignedIn = errors.New("not signed in")

// RemoteAuth authenticates against the sync server and broadcasts session
// transitions to its observers. The persist hook saves the session and
// token across restarts; pass nil to keep sessions in memory only.
type RemoteAuth struct {
	httpClient *http.Client
	baseURL    string
	persist    func(s *domain.Session, token string)

	mu     sync.Mutex
	cur    *domain.Session
	token  string
	nextID int
	subs   map[int]func(*domain.Session)
}

// NewRemoteAuth creates the auth collaborator, seeded with any previously
// persisted session.
func NewRemoteAuth(httpClient *http.Client, baseURL string, saved *domain.Session, savedToken string, persist func(*domain.Session, string)) *RemoteAuth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteAuth{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		persist:    persist,
		cur:        saved,
		token:      savedToken,
		subs:       make(map[int]func(*domain.Session)),
	}
}

// Current returns the active session, nil in local mode.
func (a *RemoteAuth) Current() *domain.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur
}

// Token returns the bearer token for the active session.
func (a *RemoteAuth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// OnSessionChange registers fn, delivering the current session immediately
// under the same mutex every transition uses, so observers see a
// consistent sequence. The unsubscribe is synchronous.
func (a *RemoteAuth) OnSessionChange(fn func(*domain.Session)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	fn(a.cur)
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// SignUp registers a new account on the sync server.
func (a *RemoteAuth) SignUp(email, password string) error {
	return a.post("/signup", credentials{Email: email, Password: password}, nil)
}

// SignIn exchanges credentials for a token and switches to remote mode.
func (a *RemoteAuth) SignIn(email, password string) error {
	var resp loginResponse
	if err := a.post("/login", credentials{Email: email, Password: password}, &resp); err != nil {
		return err
	}
	a.transition(&domain.Session{IdentityID: resp.UserID, Email: resp.Email}, resp.Token)
	return nil
}

// SignOut drops the session and switches back to local mode.
func (a *RemoteAuth) SignOut() error {
	if a.Current() == nil {
		return ErrNotSignedIn
	}
	a.transition(nil, "")
	return nil
}

func (a *RemoteAuth) transition(s *domain.Session, token string) {
	a.mu.Lock()
	a.cur = s
	a.token = token
	if a.persist != nil {
		a.persist(s, token)
	}
	for _, fn := range a.subs {
		fn(s)
	}
	a.mu.Unlock()
}

func (a *RemoteAuth) post(path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Post(a.baseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if strings.TrimSpace(eb.Error) != "" {
			return fmt.Errorf("auth %d: %s", resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("auth status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
