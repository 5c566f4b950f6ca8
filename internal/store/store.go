package store

import (
	"errors"

	"github.com/wanderkit/wander/internal/domain"
)

// ErrStoreIO marks recoverable local-backend failures (quota, corruption).
// Callers may retry the operation; data is never dropped silently.
var ErrStoreIO = errors.New("store i/o failure")

// Interface is the uniform CRUD+subscribe contract satisfied by both the
// local on-device backend and the remote multi-device backend. Exactly one
// backend is active at a time; the session gate enforces that.
//
// Scope is the identity key for remote items; the local backend ignores it.
// Backends guarantee no delivery order, consumers sort for themselves.
type Interface interface {
	// Subscribe delivers an initial snapshot and every subsequent update.
	// The returned unsubscribe func is synchronous: once it returns, fn is
	// never invoked again.
	Subscribe(scope string, fn func(items []domain.BucketItem)) (func(), error)

	// Add and Update are both upserts keyed by item id, so repeating either
	// with the same item yields the same final state.
	Add(scope string, item domain.BucketItem) error
	Update(scope string, item domain.BucketItem) error

	// Delete removes an item; deleting an unknown id is a no-op.
	Delete(scope, id string) error

	List(scope string) ([]domain.BucketItem, error)

	// ReplaceAll swaps the entire item set in one unit. Used by backup import.
	ReplaceAll(scope string, items []domain.BucketItem) error

	Close() error
}
