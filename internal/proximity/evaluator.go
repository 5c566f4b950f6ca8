package proximity

import (
	"fmt"
	"sync"

	"github.com/wanderkit/wander/internal/domain"
	"github.com/wanderkit/wander/internal/geo"
	"github.com/wanderkit/wander/internal/store"
)

// Threshold is the proximity radius in meters. It is a fixed constant of
// the domain, shared with every "nearby" indicator, not a user setting.
const Threshold = 2000.0

// Notifier is the external notification collaborator. Show is best-effort;
// the evaluator never assumes it succeeds.
type Notifier interface {
	Permission() string // "granted", "denied" or "default"
	RequestPermission() error
	Show(title, body string) error
}

// Alert is a queued proximity notification.
type Alert struct {
	ItemID string
	Title  string
	Body   string
}

// Evaluate is the pure core: it returns the items that must take the
// notified latch and the alerts to fire for them. Only items that are
// neither completed nor already notified and lie within Threshold of the
// sample qualify, so a latched item can never alert again.
func Evaluate(sample domain.GeoLocation, items []domain.BucketItem) (toLatch []domain.BucketItem, alerts []Alert) {
	for _, it := range items {
		if it.Completed || it.Notified {
			continue
		}
		d := geo.Distance(sample, it.TargetLocation)
		if d >= Threshold {
			continue
		}
		it.Notified = true
		toLatch = append(toLatch, it)
		alerts = append(alerts, Alert{
			ItemID: it.ID,
			Title:  it.Title,
			Body:   fmt.Sprintf("You are %s away from %s", geo.FormatDistance(d), it.Title),
		})
	}
	return toLatch, alerts
}

// Evaluator wires the pure evaluation into the item store and the
// notification collaborator. The session gate swaps its backend; the store
// subscription feeds it the latest snapshot.
type Evaluator struct {
	notifier Notifier

	mu    sync.Mutex
	st    store.Interface
	scope string
	items []domain.BucketItem
}

// NewEvaluator creates an evaluator dispatching through notifier.
func NewEvaluator(notifier Notifier) *Evaluator {
	return &Evaluator{notifier: notifier}
}

// SetBackend points the evaluator at the currently active store backend.
func (e *Evaluator) SetBackend(st store.Interface, scope string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = st
	e.scope = scope
}

// SetItems replaces the snapshot evaluation runs against. Wire it to the
// active store subscription so latch decisions always see the latest state.
func (e *Evaluator) SetItems(items []domain.BucketItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = items
}

// HandleFix processes one location sample: commit the notified latch
// through the store first, then dispatch the alert. A dispatch failure
// never rolls the latch back, which keeps delivery at-most-once per item.
func (e *Evaluator) HandleFix(sample domain.GeoLocation) {
	e.mu.Lock()
	st, scope := e.st, e.scope
	snapshot := make([]domain.BucketItem, len(e.items))
	copy(snapshot, e.items)
	e.mu.Unlock()

	toLatch, alerts := Evaluate(sample, snapshot)
	if len(toLatch) == 0 {
		return
	}

	latched := make(map[string]bool, len(toLatch))
	for _, it := range toLatch {
		if st != nil {
			if err := st.Update(scope, it); err != nil {
				// Latch not durable; skip the alert so retrying the same
				// sample cannot double-notify.
				continue
			}
		}
		latched[it.ID] = true
		e.applyLatch(it)
	}

	if e.notifier == nil || e.notifier.Permission() != "granted" {
		return
	}
	for _, a := range alerts {
		if !latched[a.ItemID] {
			continue
		}
		_ = e.notifier.Show(a.Title, a.Body) // best-effort
	}
}

// applyLatch folds a latched item back into the in-memory snapshot so a
// second evaluation in the same tick window stays idempotent even before
// the subscription pushes the updated set.
func (e *Evaluator) applyLatch(it domain.BucketItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.items {
		if e.items[i].ID == it.ID {
			e.items[i].Notified = true
			return
		}
	}
}
