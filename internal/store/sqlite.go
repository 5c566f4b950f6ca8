package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wanderkit/wander/internal/domain"
)

//go:embed schema.sql
var schema string

// Local is the on-device backend. It persists items in a single SQLite
// table keyed by item id and ignores the scope key entirely.
type Local struct {
	db *sql.DB

	mu     sync.Mutex
	nextID int
	subs   map[int]func([]domain.BucketItem)
}

// NewLocal opens (creating if needed) the local item database.
func NewLocal(dbPath string) (*Local, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, ioError("open database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, ioError("init schema", err)
	}

	return &Local{db: db, subs: make(map[int]func([]domain.BucketItem))}, nil
}

// Close closes the database connection.
func (l *Local) Close() error {
	return l.db.Close()
}

// Subscribe registers fn and synchronously delivers the current snapshot.
// The subscriber mutex is held for every delivery, so once the returned
// unsubscribe func acquires it and removes fn, no further call can start.
// Subscribers must not mutate the store from inside the callback.
func (l *Local) Subscribe(_ string, fn func([]domain.BucketItem)) (func(), error) {
	items, err := l.List("")
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	fn(items)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}, nil
}

// Add inserts or overwrites the item. Same semantics as Update: both are
// upserts, so repeating a call changes nothing.
func (l *Local) Add(_ string, item domain.BucketItem) error {
	return l.upsert(item)
}

// Update inserts or overwrites the item.
func (l *Local) Update(_ string, item domain.BucketItem) error {
	return l.upsert(item)
}

func (l *Local) upsert(item domain.BucketItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	_, err := l.db.Exec(`
		INSERT INTO items (id, title, description, lat, lng, completed, completed_at, notified, category, interest, created_at, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			lat = excluded.lat,
			lng = excluded.lng,
			completed = excluded.completed,
			completed_at = excluded.completed_at,
			notified = excluded.notified,
			category = excluded.category,
			interest = excluded.interest`,
		item.ID, item.Title, item.Description,
		item.TargetLocation.Lat, item.TargetLocation.Lng,
		item.Completed, item.CompletedAt, item.Notified,
		item.Category, item.Interest, item.CreatedAt, item.UserID,
	)
	if err != nil {
		return ioError("upsert item", err)
	}
	l.broadcast()
	return nil
}

// Delete removes the item; unknown ids are a no-op.
func (l *Local) Delete(_ string, id string) error {
	res, err := l.db.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return ioError("delete item", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.broadcast()
	}
	return nil
}

// List returns every stored item, in no promised order.
func (l *Local) List(_ string) ([]domain.BucketItem, error) {
	rows, err := l.db.Query(`
		SELECT id, title, description, lat, lng, completed, completed_at, notified, category, interest, created_at, user_id
		FROM items`)
	if err != nil {
		return nil, ioError("list items", err)
	}
	defer rows.Close()

	var items []domain.BucketItem
	for rows.Next() {
		var it domain.BucketItem
		var completedAt sql.NullTime
		if err := rows.Scan(
			&it.ID, &it.Title, &it.Description,
			&it.TargetLocation.Lat, &it.TargetLocation.Lng,
			&it.Completed, &completedAt, &it.Notified,
			&it.Category, &it.Interest, &it.CreatedAt, &it.UserID,
		); err != nil {
			return nil, ioError("scan item", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			it.CompletedAt = &t
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("list items", err)
	}
	return items, nil
}

// ReplaceAll swaps the entire item set in a single transaction, so a failed
// import leaves the previous set untouched.
func (l *Local) ReplaceAll(_ string, items []domain.BucketItem) error {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
	}

	tx, err := l.db.Begin()
	if err != nil {
		return ioError("begin replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM items"); err != nil {
		return ioError("clear items", err)
	}
	for _, it := range items {
		if _, err := tx.Exec(`
			INSERT INTO items (id, title, description, lat, lng, completed, completed_at, notified, category, interest, created_at, user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.Title, it.Description,
			it.TargetLocation.Lat, it.TargetLocation.Lng,
			it.Completed, it.CompletedAt, it.Notified,
			it.Category, it.Interest, it.CreatedAt, it.UserID,
		); err != nil {
			return ioError("insert item", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ioError("commit replace", err)
	}
	l.broadcast()
	return nil
}

func (l *Local) broadcast() {
	items, err := l.List("")
	if err != nil {
		return
	}
	l.mu.Lock()
	for _, fn := range l.subs {
		fn(items)
	}
	l.mu.Unlock()
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreIO, op, err)
}
