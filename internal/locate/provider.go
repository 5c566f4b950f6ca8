package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/wanderkit/wander/internal/domain"
)

// HTTPProvider fetches fixes from an HTTP endpoint returning a JSON
// {"lat": .., "lng": ..} body, e.g. a companion app on the phone or a
// GPS bridge on the local network. It keeps the last fix so a request
// within MaxCacheAge can be answered without touching the network.
type HTTPProvider struct {
	client *http.Client
	url    string

	mu       sync.Mutex
	cached   *domain.GeoLocation
	cachedAt time.Time
}

// NewHTTPProvider creates a provider polling the given endpoint.
func NewHTTPProvider(client *http.Client, url string) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPProvider{client: client, url: url}
}

// Current returns a fix, honoring the cache-age and timeout options.
func (p *HTTPProvider) Current(ctx context.Context, opts Options) (domain.GeoLocation, error) {
	if fix, ok := p.fromCache(opts.MaxCacheAge); ok {
		return fix, nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.GeoLocation{}, ErrTimeout
		}
		return domain.GeoLocation{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.GeoLocation{}, ErrPermissionDenied
	case resp.StatusCode != http.StatusOK:
		return domain.GeoLocation{}, fmt.Errorf("%w: HTTP %d", ErrPositionUnavailable, resp.StatusCode)
	}

	var fix domain.GeoLocation
	limited := io.LimitReader(resp.Body, 1<<16)
	if err := json.NewDecoder(limited).Decode(&fix); err != nil {
		return domain.GeoLocation{}, fmt.Errorf("%w: decode fix: %v", ErrPositionUnavailable, err)
	}
	if err := fix.Validate(); err != nil {
		return domain.GeoLocation{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}

	p.mu.Lock()
	p.cached = &fix
	p.cachedAt = time.Now()
	p.mu.Unlock()
	return fix, nil
}

func (p *HTTPProvider) fromCache(maxAge time.Duration) (domain.GeoLocation, bool) {
	if maxAge == 0 {
		return domain.GeoLocation{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return domain.GeoLocation{}, false
	}
	if maxAge > 0 && time.Since(p.cachedAt) > maxAge {
		return domain.GeoLocation{}, false
	}
	return *p.cached, true
}

// ReplayProvider serves fixes from a prerecorded track, advancing one fix
// per request and holding the last one. Used by `track --replay` and tests.
type ReplayProvider struct {
	mu    sync.Mutex
	fixes []domain.GeoLocation
	next  int
}

// NewReplayProvider wraps a fixed track.
func NewReplayProvider(fixes []domain.GeoLocation) *ReplayProvider {
	return &ReplayProvider{fixes: fixes}
}

// LoadReplay reads a JSON array of {"lat","lng"} fixes from a file.
func LoadReplay(path string) (*ReplayProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay track: %w", err)
	}
	var fixes []domain.GeoLocation
	if err := json.Unmarshal(b, &fixes); err != nil {
		return nil, fmt.Errorf("parse replay track: %w", err)
	}
	if len(fixes) == 0 {
		return nil, errors.New("replay track is empty")
	}
	return NewReplayProvider(fixes), nil
}

// Current returns the next fix in the track.
func (p *ReplayProvider) Current(_ context.Context, _ Options) (domain.GeoLocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fixes) == 0 {
		return domain.GeoLocation{}, ErrPositionUnavailable
	}
	fix := p.fixes[p.next]
	if p.next < len(p.fixes)-1 {
		p.next++
	}
	return fix, nil
}
