package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// GeoLocation is a WGS84 coordinate pair. Produced fresh by every location
// sample; only persisted when embedded in an item.
type GeoLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate ranges.
func (g GeoLocation) Validate() error {
	if g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", g.Lat)
	}
	if g.Lng < -180 || g.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", g.Lng)
	}
	return nil
}

// BucketItem is a place the user wants to visit.
type BucketItem struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	TargetLocation GeoLocation `json:"targetLocation"`
	Completed      bool        `json:"completed"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	// Notified is a one-way latch: once true it stays true for the lifetime
	// of the item, so the same place never alerts twice.
	Notified  bool      `json:"notified"`
	Category  string    `json:"category,omitempty"`
	Interest  string    `json:"interest,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	// UserID is set only while the item belongs to a remote identity.
	UserID string `json:"userId,omitempty"`
}

// ErrEmptyTitle is returned when an item is created or edited without a title.
var ErrEmptyTitle = errors.New("item title must not be empty")

// NewItem creates an unvisited, un-notified item.
func NewItem(title string, loc GeoLocation) (BucketItem, error) {
	if title == "" {
		return BucketItem{}, ErrEmptyTitle
	}
	if err := loc.Validate(); err != nil {
		return BucketItem{}, err
	}
	return BucketItem{
		ID:             uuid.New().String(),
		Title:          title,
		TargetLocation: loc,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Validate checks the item invariants that both backends enforce.
func (b BucketItem) Validate() error {
	if b.ID == "" {
		return errors.New("item id must not be empty")
	}
	if b.Title == "" {
		return ErrEmptyTitle
	}
	if err := b.TargetLocation.Validate(); err != nil {
		return err
	}
	if b.Completed && b.CompletedAt == nil {
		return errors.New("completed item missing completedAt")
	}
	if !b.Completed && b.CompletedAt != nil {
		return errors.New("uncompleted item carries completedAt")
	}
	return nil
}

// ToggleCompleted flips the completed flag, keeping completedAt present
// exactly while completed is true.
func (b *BucketItem) ToggleCompleted() {
	b.Completed = !b.Completed
	if b.Completed {
		now := time.Now().UTC()
		b.CompletedAt = &now
	} else {
		b.CompletedAt = nil
	}
}

// Session identifies a signed-in remote identity. A nil *Session means
// local mode.
type Session struct {
	IdentityID string `json:"identityId"`
	Email      string `json:"email"`
}

// SortItems orders items newest-first. Backends make no ordering promise,
// so every consumer sorts for itself.
func SortItems(items []BucketItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
