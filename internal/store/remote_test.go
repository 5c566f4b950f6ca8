package store

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wanderkit/wander/internal/domain"
)

// fakeServer is a minimal in-memory sync endpoint: items keyed by id, a
// version that bumps on every write, and an optional failure switch.
type fakeServer struct {
	mu      sync.Mutex
	items   map[string]domain.BucketItem
	version int64
	failing bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{items: make(map[string]domain.BucketItem)}
}

func (f *fakeServer) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeServer) put(it domain.BucketItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[it.ID] = it
	f.version++
}

func (f *fakeServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failing {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/items":
			items := make([]domain.BucketItem, 0, len(f.items))
			for _, it := range f.items {
				items = append(items, it)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"items":          items,
				"latest_version": f.version,
			})
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/items/"):
			var it domain.BucketItem
			if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.items[it.ID] = it
			f.version++
			json.NewEncoder(w).Encode(it)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/items/"):
			id := strings.TrimPrefix(r.URL.Path, "/items/")
			if _, ok := f.items[id]; ok {
				delete(f.items, id)
				f.version++
			}
			json.NewEncoder(w).Encode(map[string]string{"deleted": id})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestRemote(t *testing.T, f *fakeServer) *Remote {
	t.Helper()
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	r := NewRemote(ts.Client(), ts.URL, "test-token")
	r.pollInterval = 20 * time.Millisecond
	return r
}

func remoteItem(t *testing.T, title string) domain.BucketItem {
	t.Helper()
	it, err := domain.NewItem(title, domain.GeoLocation{Lat: 1, Lng: 2})
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	return it
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRemoteUpsertAndList(t *testing.T) {
	f := newFakeServer()
	r := newTestRemote(t, f)

	it := remoteItem(t, "Machu Picchu")
	if err := r.Add("u1", it); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Update("u1", it); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}

	items, err := r.List("u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].UserID != "u1" {
		t.Fatalf("expected scope stamped onto item, got %q", items[0].UserID)
	}
}

func TestRemoteDeleteUnknownIsNoOp(t *testing.T) {
	f := newFakeServer()
	r := newTestRemote(t, f)
	if err := r.Delete("u1", "missing"); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
}

func TestRemoteSubscribeDeliversSnapshotAndUpdates(t *testing.T) {
	f := newFakeServer()
	f.put(remoteItem(t, "first"))
	r := newTestRemote(t, f)

	var mu sync.Mutex
	var snapshots [][]domain.BucketItem
	unsub, err := r.Subscribe("u1", func(items []domain.BucketItem) {
		mu.Lock()
		snapshots = append(snapshots, items)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) >= 1
	}, "no initial snapshot")

	f.put(remoteItem(t, "second"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) >= 2 && len(snapshots[len(snapshots)-1]) == 2
	}, "no update after server-side write")
}

func TestRemoteSubscribeKeepsSnapshotThroughFailure(t *testing.T) {
	f := newFakeServer()
	f.put(remoteItem(t, "only"))
	r := newTestRemote(t, f)

	var mu sync.Mutex
	var calls int
	unsub, err := r.Subscribe("u1", func([]domain.BucketItem) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls == 1 }, "no initial snapshot")

	// A failing server must neither emit nor clear anything; when it comes
	// back with a new version the subscription resumes transparently.
	f.setFailing(true)
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	if calls != 1 {
		mu.Unlock()
		t.Fatal("failure produced a delivery")
	}
	mu.Unlock()

	f.setFailing(false)
	f.put(remoteItem(t, "after-recovery"))
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls == 2 }, "no delivery after recovery")
}

func TestRemoteUnsubscribeIsSynchronous(t *testing.T) {
	f := newFakeServer()
	f.put(remoteItem(t, "x"))
	r := newTestRemote(t, f)

	var mu sync.Mutex
	var calls int
	unsub, err := r.Subscribe("u1", func([]domain.BucketItem) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls >= 1 }, "no initial snapshot")
	unsub()

	mu.Lock()
	before := calls
	mu.Unlock()

	f.put(remoteItem(t, "late"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != before {
		t.Fatal("callback invoked after unsubscribe returned")
	}
}

func TestRemoteReplaceAllConverges(t *testing.T) {
	f := newFakeServer()
	stale := remoteItem(t, "stale")
	f.put(stale)
	r := newTestRemote(t, f)

	fresh := remoteItem(t, "fresh")
	if err := r.ReplaceAll("u1", []domain.BucketItem{fresh}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	items, err := r.List("u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh item, got %+v", items)
	}
}
