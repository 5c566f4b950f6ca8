package syncserver

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/wanderkit/wander/internal/domain"
)

//go:embed schema.sql
var schema string

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Repo is the sync server's storage layer.
type Repo struct {
	db *sql.DB
}

// NewRepo opens the server database, creating the schema if needed.
func NewRepo(dbPath string) (*Repo, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Repo{db: db}, nil
}

// Close closes the database connection.
func (r *Repo) Close() error { return r.db.Close() }

// CreateUser registers an account with a bcrypt-hashed password.
func (r *Repo) CreateUser(email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := uuid.New().String()
	_, err = r.db.Exec(
		"INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		id, email, string(hash), time.Now().UTC(),
	)
	if err != nil {
		var exists int
		if scanErr := r.db.QueryRow("SELECT COUNT(1) FROM users WHERE email = ?", email).Scan(&exists); scanErr == nil && exists > 0 {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// Authenticate verifies credentials and issues a bearer token.
func (r *Repo) Authenticate(email, password string) (userID, token string, err error) {
	var hash string
	err = r.db.QueryRow("SELECT id, password_hash FROM users WHERE email = ?", email).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrInvalidCredentials
	}
	if err != nil {
		return "", "", fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", "", ErrInvalidCredentials
	}

	token = uuid.New().String()
	if _, err := r.db.Exec(
		"INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)",
		token, userID, time.Now().UTC(),
	); err != nil {
		return "", "", fmt.Errorf("insert token: %w", err)
	}
	return userID, token, nil
}

// UserForToken resolves a bearer token to its user.
func (r *Repo) UserForToken(token string) (string, error) {
	var userID string
	err := r.db.QueryRow("SELECT user_id FROM tokens WHERE token = ?", token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("find token: %w", err)
	}
	return userID, nil
}

func nextVersionTx(tx *sql.Tx, userID string) (int64, error) {
	var next int64
	err := tx.QueryRow(
		"SELECT COALESCE(version, 0) + 1 FROM user_versions WHERE user_id = ?", userID,
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		next = 1
		err = nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		INSERT INTO user_versions (user_id, version) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET version = excluded.version`,
		userID, next,
	); err != nil {
		return 0, err
	}
	return next, nil
}

// UpsertItem stores the item under the user's scope and bumps the per-user
// version so pollers pick up the change.
func (r *Repo) UpsertItem(userID string, item domain.BucketItem) error {
	item.UserID = userID
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	version, err := nextVersionTx(tx, userID)
	if err != nil {
		return fmt.Errorf("next version: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO items (user_id, id, payload, version) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			payload = excluded.payload,
			version = excluded.version`,
		userID, item.ID, string(payload), version,
	); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return tx.Commit()
}

// DeleteItem removes the item. Unknown ids succeed without bumping the
// version, so repeat deletes stay cheap no-ops.
func (r *Repo) DeleteItem(userID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM items WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}
	if _, err := nextVersionTx(tx, userID); err != nil {
		return fmt.Errorf("next version: %w", err)
	}
	return tx.Commit()
}

// ListItems returns the user's items and the current per-user version.
func (r *Repo) ListItems(userID string) ([]domain.BucketItem, int64, error) {
	rows, err := r.db.Query("SELECT payload FROM items WHERE user_id = ?", userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []domain.BucketItem{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		var it domain.BucketItem
		if err := json.Unmarshal([]byte(payload), &it); err != nil {
			return nil, 0, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}

	var version int64
	err = r.db.QueryRow("SELECT version FROM user_versions WHERE user_id = ?", userID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("latest version: %w", err)
	}
	return items, version, nil
}
