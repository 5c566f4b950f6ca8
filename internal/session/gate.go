package session

import (
	"fmt"
	"sync"

	"github.com/wanderkit/wander/internal/domain"
	"github.com/wanderkit/wander/internal/store"
)

// Auth is the external identity collaborator. A nil session means local
// mode. OnSessionChange delivers the current session immediately, then
// every transition, until the returned unsubscribe runs.
type Auth interface {
	OnSessionChange(fn func(*domain.Session)) (unsub func())
	SignIn(email, password string) error
	SignOut() error
}

// Gate observes session transitions and keeps exactly one item-store
// subscription alive: the local backend while signed out, a remote backend
// scoped to the identity while signed in. Every transition detaches the
// previous subscription before the next backend emits anything.
type Gate struct {
	local     store.Interface
	newRemote func(s *domain.Session) store.Interface
	onItems   func([]domain.BucketItem)
	// onSwitch runs after each backend change with the now-active backend
	// and scope; hosts hang policy here (point the evaluator at the new
	// backend, stop tracking on sign-out, and so on).
	onSwitch func(st store.Interface, scope string, s *domain.Session)

	mu         sync.Mutex
	unsubAuth  func()
	unsubStore func()
	active     store.Interface
	scope      string
	remote     store.Interface
}

// NewGate wires the gate. newRemote builds a remote backend for a signed-in
// session; onSwitch may be nil.
func NewGate(
	local store.Interface,
	newRemote func(s *domain.Session) store.Interface,
	onItems func([]domain.BucketItem),
	onSwitch func(st store.Interface, scope string, s *domain.Session),
) *Gate {
	return &Gate{local: local, newRemote: newRemote, onItems: onItems, onSwitch: onSwitch}
}

// Bind attaches the gate to the auth collaborator. The auth's immediate
// delivery of the current session selects the initial backend.
func (g *Gate) Bind(auth Auth) {
	g.unsubAuth = auth.OnSessionChange(func(s *domain.Session) {
		if err := g.apply(s); err != nil {
			fmt.Printf("session switch: %v\n", err)
		}
	})
}

// Active returns the currently selected backend and scope key.
func (g *Gate) Active() (store.Interface, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.scope
}

// apply performs one transition. The mutex serializes transitions, and the
// old subscription is detached before the new backend is subscribed, so no
// two subscriptions are ever live at once and nothing can write into the
// wrong scope.
func (g *Gate) apply(s *domain.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.unsubStore != nil {
		g.unsubStore()
		g.unsubStore = nil
	}
	if g.remote != nil {
		g.remote.Close()
		g.remote = nil
	}

	if s == nil {
		g.active = g.local
		g.scope = ""
	} else {
		g.remote = g.newRemote(s)
		g.active = g.remote
		g.scope = s.IdentityID
	}

	if g.onSwitch != nil {
		g.onSwitch(g.active, g.scope, s)
	}

	unsub, err := g.active.Subscribe(g.scope, g.onItems)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", g.scope, err)
	}
	g.unsubStore = unsub
	return nil
}

// Close detaches everything: auth subscription first so no further
// transitions arrive, then the store subscription.
func (g *Gate) Close() {
	if g.unsubAuth != nil {
		g.unsubAuth()
		g.unsubAuth = nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubStore != nil {
		g.unsubStore()
		g.unsubStore = nil
	}
	if g.remote != nil {
		g.remote.Close()
		g.remote = nil
	}
}
