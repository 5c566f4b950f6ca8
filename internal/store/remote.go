package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wanderkit/wander/internal/domain"
)

// defaultPollInterval is how often an active remote subscription checks the
// server for changes.
const defaultPollInterval = 5 * time.Second

// Remote is the multi-device backend. Writes go straight to the sync
// server; the subscription is a polling loop keyed by a per-user version
// counter. Network failures leave the last-known snapshot in place and the
// next poll retries transparently; the remote path is eventually consistent.
type Remote struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	pollInterval time.Duration

	mu   sync.Mutex
	kick chan struct{}
}

// NewRemote creates a remote backend talking to the sync server at baseURL,
// authenticated by the session's bearer token.
func NewRemote(httpClient *http.Client, baseURL, token string) *Remote {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Remote{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:        strings.TrimSpace(token),
		pollInterval: defaultPollInterval,
	}
}

type listResponse struct {
	Items         []domain.BucketItem `json:"items"`
	LatestVersion int64               `json:"latest_version"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Subscribe polls the server for the scope's items. The first successful
// fetch delivers the initial snapshot; afterwards fn runs only when the
// server-side version advances. Unsubscribing cancels the loop and waits
// for it to exit, so fn is never invoked after the unsubscribe returns.
func (r *Remote) Subscribe(scope string, fn func([]domain.BucketItem)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		var lastVersion int64 = -1
		poll := func() {
			resp, err := r.list(ctx)
			if err != nil {
				// Keep the last snapshot; the next tick retries.
				return
			}
			if resp.LatestVersion == lastVersion {
				return
			}
			lastVersion = resp.LatestVersion
			items := resp.Items
			if items == nil {
				items = []domain.BucketItem{}
			}
			if ctx.Err() == nil {
				fn(items)
			}
		}

		poll()
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.kicked():
				poll()
			case <-ticker.C:
				poll()
			}
		}
	}()

	_ = scope // the bearer token already scopes every request server-side

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

// kicked returns the channel a local write pokes to trigger an immediate
// refresh instead of waiting out the poll interval.
func (r *Remote) kicked() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kick == nil {
		r.kick = make(chan struct{}, 1)
	}
	return r.kick
}

func (r *Remote) poke() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kick == nil {
		return
	}
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Add upserts the item under the scope's identity.
func (r *Remote) Add(scope string, item domain.BucketItem) error {
	return r.upsert(scope, item)
}

// Update upserts the item under the scope's identity.
func (r *Remote) Update(scope string, item domain.BucketItem) error {
	return r.upsert(scope, item)
}

func (r *Remote) upsert(scope string, item domain.BucketItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	item.UserID = scope
	if err := r.do(context.Background(), http.MethodPut, "/items/"+item.ID, item, nil); err != nil {
		return fmt.Errorf("remote upsert: %w", err)
	}
	r.poke()
	return nil
}

// Delete removes the item server-side; unknown ids succeed as a no-op.
func (r *Remote) Delete(_ string, id string) error {
	if err := r.do(context.Background(), http.MethodDelete, "/items/"+id, nil, nil); err != nil {
		return fmt.Errorf("remote delete: %w", err)
	}
	r.poke()
	return nil
}

// List fetches the scope's current item set.
func (r *Remote) List(string) ([]domain.BucketItem, error) {
	resp, err := r.list(context.Background())
	if err != nil {
		return nil, fmt.Errorf("remote list: %w", err)
	}
	return resp.Items, nil
}

// ReplaceAll brings the remote set in line with items: everything absent
// from items is deleted, everything present is upserted. Each call is its
// own unit of durability; the remote path converges, it is not atomic.
func (r *Remote) ReplaceAll(scope string, items []domain.BucketItem) error {
	current, err := r.List(scope)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(items))
	for _, it := range items {
		keep[it.ID] = true
	}
	for _, it := range current {
		if !keep[it.ID] {
			if err := r.Delete(scope, it.ID); err != nil {
				return err
			}
		}
	}
	for _, it := range items {
		if err := r.upsert(scope, it); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the remote backend holds no local resources beyond the
// shared HTTP client.
func (r *Remote) Close() error { return nil }

func (r *Remote) list(ctx context.Context) (*listResponse, error) {
	var out listResponse
	if err := r.do(ctx, http.MethodGet, "/items", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	if strings.TrimSpace(eb.Error) != "" {
		return fmt.Errorf("sync server %d: %s", resp.StatusCode, eb.Error)
	}
	return fmt.Errorf("sync server status %d", resp.StatusCode)
}
