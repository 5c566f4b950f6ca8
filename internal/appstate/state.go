package appstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wanderkit/wander/internal/domain"
)

// settings is the persisted shape of the application context.
type settings struct {
	CustomBuckets   []string        `json:"customBuckets"`
	CustomInterests []string        `json:"customInterests"`
	Theme           string          `json:"theme"`
	Session         *domain.Session `json:"session,omitempty"`
	Token           string          `json:"token,omitempty"`
	SyncServerURL   string          `json:"syncServerUrl,omitempty"`
	GeoURL          string          `json:"geoUrl,omitempty"`
}

// State is the explicit application context: custom classification lists,
// theme and the saved session. Loaded once at startup and persisted on
// every change; components receive it, nothing reads it ambiently.
type State struct {
	path string

	mu sync.Mutex
	s  settings
}

// Load reads the settings file, starting fresh when it does not exist yet.
func Load(path string) (*State, error) {
	st := &State{path: path, s: settings{Theme: "light"}}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(b, &st.s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return st, nil
}

func (st *State) save() {
	b, err := json.MarshalIndent(st.s, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(st.path, b, 0o600)
}

// CustomBuckets returns the user-extended category list.
func (st *State) CustomBuckets() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.s.CustomBuckets...)
}

// CustomInterests returns the user-extended interest list.
func (st *State) CustomInterests() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.s.CustomInterests...)
}

// AddBucket records a new custom category, ignoring duplicates.
func (st *State) AddBucket(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if name == "" || contains(st.s.CustomBuckets, name) {
		return
	}
	st.s.CustomBuckets = append(st.s.CustomBuckets, name)
	st.save()
}

// AddInterest records a new custom interest, ignoring duplicates.
func (st *State) AddInterest(name string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if name == "" || contains(st.s.CustomInterests, name) {
		return
	}
	st.s.CustomInterests = append(st.s.CustomInterests, name)
	st.save()
}

// SetCustomLists replaces both lists at once (backup import path).
func (st *State) SetCustomLists(buckets, interests []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.CustomBuckets = append([]string(nil), buckets...)
	st.s.CustomInterests = append([]string(nil), interests...)
	st.save()
}

// Theme returns the display theme name.
func (st *State) Theme() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Theme
}

// SetTheme persists a new theme choice.
func (st *State) SetTheme(theme string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Theme = theme
	st.save()
}

// Session returns the saved session and token, nil/"" in local mode.
func (st *State) Session() (*domain.Session, string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Session, st.s.Token
}

// SetSession persists a session transition.
func (st *State) SetSession(s *domain.Session, token string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Session = s
	st.s.Token = token
	st.save()
}

// SyncServerURL returns the configured sync server, empty if unset.
func (st *State) SyncServerURL() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.SyncServerURL
}

// SetSyncServerURL persists the sync server endpoint.
func (st *State) SetSyncServerURL(u string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.SyncServerURL = u
	st.save()
}

// GeoURL returns the configured geolocation endpoint, empty if unset.
func (st *State) GeoURL() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.GeoURL
}

// SetGeoURL persists the geolocation endpoint.
func (st *State) SetGeoURL(u string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.GeoURL = u
	st.save()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
