package domain

import (
	"testing"
	"time"
)

func TestNewItemDefaults(t *testing.T) {
	it, err := NewItem("Eiffel Tower", GeoLocation{Lat: 48.8584, Lng: 2.2945})
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	if it.ID == "" {
		t.Error("expected generated id")
	}
	if it.Completed || it.Notified {
		t.Error("new item must start uncompleted and un-notified")
	}
	if it.CompletedAt != nil {
		t.Error("new item must not carry completedAt")
	}
	if it.CreatedAt.IsZero() {
		t.Error("expected createdAt to be set")
	}
}

func TestNewItemRejectsEmptyTitle(t *testing.T) {
	if _, err := NewItem("", GeoLocation{}); err != ErrEmptyTitle {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
}

func TestNewItemRejectsBadCoordinates(t *testing.T) {
	tests := []GeoLocation{
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
	}
	for _, loc := range tests {
		if _, err := NewItem("x", loc); err == nil {
			t.Errorf("expected error for %v", loc)
		}
	}
}

func TestToggleCompleted(t *testing.T) {
	it, _ := NewItem("Sagrada Familia", GeoLocation{Lat: 41.4036, Lng: 2.1744})

	it.ToggleCompleted()
	if !it.Completed {
		t.Fatal("expected completed after toggle")
	}
	if it.CompletedAt == nil {
		t.Fatal("expected completedAt set while completed")
	}

	it.ToggleCompleted()
	if it.Completed {
		t.Fatal("expected uncompleted after second toggle")
	}
	if it.CompletedAt != nil {
		t.Fatal("expected completedAt cleared when uncompleting")
	}
}

func TestValidateCompletedAtInvariant(t *testing.T) {
	it, _ := NewItem("x", GeoLocation{})

	it.Completed = true
	if err := it.Validate(); err == nil {
		t.Error("completed without completedAt must fail validation")
	}

	now := time.Now()
	it.Completed = false
	it.CompletedAt = &now
	if err := it.Validate(); err == nil {
		t.Error("uncompleted with completedAt must fail validation")
	}
}

func TestSortItemsNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []BucketItem{
		{ID: "a", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "b", CreatedAt: base.Add(time.Hour)},
	}
	SortItems(items)
	want := []string{"c", "b", "a"}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, items[i].ID, id)
		}
	}
}
