package locate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wanderkit/wander/internal/domain"
)

func TestHTTPProviderReturnsFix(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.GeoLocation{Lat: 59.9139, Lng: 10.7522})
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.Client(), ts.URL)
	fix, err := p.Current(context.Background(), Options{HighAccuracy: true, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if fix.Lat != 59.9139 || fix.Lng != 10.7522 {
		t.Fatalf("fix = %v", fix)
	}
}

func TestHTTPProviderClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, ErrPermissionDenied},
		{http.StatusUnauthorized, ErrPermissionDenied},
		{http.StatusInternalServerError, ErrPositionUnavailable},
	}
	for _, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		p := NewHTTPProvider(ts.Client(), ts.URL)
		_, err := p.Current(context.Background(), Options{Timeout: time.Second})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
		ts.Close()
	}
}

func TestHTTPProviderTimeoutClassified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.Client(), ts.URL)
	_, err := p.Current(context.Background(), Options{Timeout: 20 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestHTTPProviderRejectsBadCoordinates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.GeoLocation{Lat: 95, Lng: 0})
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.Client(), ts.URL)
	if _, err := p.Current(context.Background(), Options{Timeout: time.Second}); !errors.Is(err, ErrPositionUnavailable) {
		t.Fatalf("expected ErrPositionUnavailable for out-of-range fix, got %v", err)
	}
}

func TestHTTPProviderServesFromCache(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(domain.GeoLocation{Lat: 1, Lng: 2})
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.Client(), ts.URL)
	opts := Options{Timeout: time.Second, MaxCacheAge: time.Minute}

	if _, err := p.Current(context.Background(), opts); err != nil {
		t.Fatalf("first fix: %v", err)
	}
	if _, err := p.Current(context.Background(), opts); err != nil {
		t.Fatalf("cached fix: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single network hit, got %d", got)
	}

	// A fresh-only request bypasses the cache.
	if _, err := p.Current(context.Background(), Options{Timeout: time.Second}); err != nil {
		t.Fatalf("fresh fix: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("fresh request must hit the network, got %d hits", got)
	}
}

func TestReplayProviderAdvancesAndHolds(t *testing.T) {
	fixes := []domain.GeoLocation{
		{Lat: 1, Lng: 1},
		{Lat: 2, Lng: 2},
	}
	p := NewReplayProvider(fixes)

	for _, want := range []domain.GeoLocation{fixes[0], fixes[1], fixes[1]} {
		got, err := p.Current(context.Background(), Options{})
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
