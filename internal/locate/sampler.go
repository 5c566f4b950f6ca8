package locate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wanderkit/wander/internal/domain"
)

// Failure taxonomy for location sampling. Permission denial is terminal for
// the current tracking session; the other two are transient.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

// Options controls a single fix request. MaxCacheAge < 0 means a cached fix
// of any age is acceptable.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
}

// Provider acquires the device's current coordinates. Implementations
// classify failures into the package taxonomy.
type Provider interface {
	Current(ctx context.Context, opts Options) (domain.GeoLocation, error)
}

// Config tunes the sampler. Zero values take the defaults below; the poll
// interval is clamped to [1s, 30s] to stay useful at walking speed without
// draining the battery.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxCacheAge time.Duration
}

const (
	defaultInterval    = 5 * time.Second
	minInterval        = 1 * time.Second
	maxInterval        = 30 * time.Second
	defaultFixTimeout  = 25 * time.Second
	defaultMaxCacheAge = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.Interval < minInterval {
		c.Interval = minInterval
	}
	if c.Interval > maxInterval {
		c.Interval = maxInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultFixTimeout
	}
	if c.MaxCacheAge == 0 {
		c.MaxCacheAge = defaultMaxCacheAge
	}
	return c
}

// Sampler polls the provider while tracking is enabled and hands every
// successful fix to onFix synchronously. Ticks never overlap: a single loop
// goroutine finishes each sample before waiting for the next tick.
type Sampler struct {
	provider Provider
	onFix    func(domain.GeoLocation)
	cfg      Config

	mu      sync.Mutex
	polling bool
	gen     int
	cancel  context.CancelFunc
	loc     *domain.GeoLocation
	err     error
}

// NewSampler creates a sampler. onFix may be nil.
func NewSampler(provider Provider, onFix func(domain.GeoLocation), cfg Config) *Sampler {
	return &Sampler{provider: provider, onFix: onFix, cfg: cfg.withDefaults()}
}

// Start begins polling: one immediate sample, then one per interval.
// Calling Start on a polling sampler is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.polling {
		s.mu.Unlock()
		return
	}
	s.polling = true
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx, gen)
}

// Stop cancels the polling loop. An in-flight fix request may still
// resolve, but its result is discarded: applying a sample re-checks the
// tracking state and generation under the mutex first.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sampler) stopLocked() {
	if !s.polling {
		return
	}
	s.polling = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Tracking reports whether the sampler is in the polling state.
func (s *Sampler) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

// Location returns the last successful fix, or nil before the first one.
func (s *Sampler) Location() *domain.GeoLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Err returns the current geo error slot. A new successful sample clears
// it; the caller may also dismiss it with ClearErr.
func (s *Sampler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearErr dismisses the current geo error.
func (s *Sampler) ClearErr() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

func (s *Sampler) loop(ctx context.Context, gen int) {
	s.sample(ctx, gen)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx, gen)
		}
	}
}

// sample runs one attempt: a high-accuracy request first, and on a
// timeout-class failure exactly one low-accuracy retry with an unbounded
// cache. The fallback is never retried recursively.
func (s *Sampler) sample(ctx context.Context, gen int) {
	fix, err := s.provider.Current(ctx, Options{
		HighAccuracy: true,
		Timeout:      s.cfg.Timeout,
		MaxCacheAge:  s.cfg.MaxCacheAge,
	})
	if err != nil && errors.Is(err, ErrTimeout) {
		fix, err = s.provider.Current(ctx, Options{
			HighAccuracy: false,
			Timeout:      s.cfg.Timeout,
			MaxCacheAge:  -1,
		})
	}
	s.apply(gen, fix, err)
}

// apply commits a sample outcome. It holds the mutex across the onFix
// callback so that Stop, which takes the same mutex, cannot return while an
// evaluation is still running. Once Stop has returned no further evaluator
// invocation can start.
func (s *Sampler) apply(gen int, fix domain.GeoLocation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.polling || s.gen != gen {
		return
	}

	if err != nil {
		s.err = err
		if errors.Is(err, ErrPermissionDenied) {
			s.stopLocked()
		}
		return
	}

	loc := fix
	s.loc = &loc
	s.err = nil
	if s.onFix != nil {
		s.onFix(fix)
	}
}
