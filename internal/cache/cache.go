// Package cache is the query cache and refresh controller. It owns, per
// named query key, a cached result, a staleness timestamp, and the single
// in-flight fetch for that key. Consumers read through GetOrFetch and never
// issue their own gateway calls, which is what makes the per-key fetch
// serialization guarantee hold.
//
// The cache is process-wide mutable state with exactly two writers: fetch
// completion and mutation-driven invalidation. Stored values are replaced
// atomically and never mutated in place, so a consumer mid-read cannot
// observe a torn mix of old and new state.
package cache

import (
	"context"
	"log"
	"sync"
	"time"
)

// Key identifies a named, cacheable read (collection plus parameters).
type Key string

// FetchFunc loads fresh data for a key. It is supplied by the consumer on
// every read and remembered for background refresh and invalidation.
type FetchFunc func(ctx context.Context) (any, error)

// State is the lifecycle state of a cache entry.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateFresh
	StateStale
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// DefaultStaleAfter is how long a fetched result counts as fresh.
	DefaultStaleAfter = 10 * time.Second

	// DefaultRefreshInterval is how often mounted stale keys are refetched
	// in the background.
	DefaultRefreshInterval = 30 * time.Second
)

type result struct {
	data any
	err  error
}

type entry struct {
	state         State
	data          any
	hasData       bool
	fetchedAt     time.Time
	err           error
	waiters       []chan result
	consumers     int
	fetch         FetchFunc
	refetchOnDone bool
}

// Store is the process-wide query cache. It starts empty and is cleared
// only by process teardown.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry

	staleAfter   time.Duration
	refreshEvery time.Duration
	now          func() time.Time
	metrics      *Metrics

	stop     chan struct{}
	stopOnce sync.Once
	running  bool
}

// Option configures a Store.
type Option func(*Store)

// WithStaleAfter overrides the freshness window.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) { s.staleAfter = d }
}

// WithRefreshInterval overrides the background refresh interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Store) { s.refreshEvery = d }
}

// WithClock overrides the time source. Tests use this to step staleness
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty store. Call Start to enable interval-based
// background refresh.
func New(opts ...Option) *Store {
	s := &Store{
		entries:      make(map[Key]*entry),
		staleAfter:   DefaultStaleAfter,
		refreshEvery: DefaultRefreshInterval,
		now:          time.Now,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrFetch returns the cached value for key, fetching through fn when the
// entry is missing, stale, or errored.
//
//   - Fresh: the cached value is returned without any network call.
//   - Fetching: the caller attaches to the in-flight fetch; no duplicate
//     call is made.
//   - Stale with data: the stale value is returned immediately and a
//     background revalidation starts (stale-while-revalidate).
//   - Idle, or errored with nothing cached: the fetch runs in the
//     foreground and the caller waits for it.
//
// A failed fetch is retried once before the entry moves to the error state.
// An errored entry keeps its last-known-good data, which is returned
// alongside the error so the UI is never blanked by a transient failure.
func (s *Store) GetOrFetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	s.mu.Lock()
	e := s.ensureLocked(key)
	e.fetch = fn

	switch {
	case e.state == StateFetching:
		s.metrics.fetchDeduped(key)
		ch := make(chan result, 1)
		e.waiters = append(e.waiters, ch)
		s.mu.Unlock()
		return s.await(ctx, ch)

	case e.state == StateFresh && s.now().Sub(e.fetchedAt) < s.staleAfter:
		data := e.data
		s.mu.Unlock()
		s.metrics.hit(key)
		return data, nil

	case e.hasData:
		if e.state == StateFresh {
			e.state = StateStale
		}
		data, err := e.data, e.err
		s.beginFetchLocked(key, e)
		s.mu.Unlock()
		s.metrics.servedStale(key)
		return data, err

	default:
		ch := make(chan result, 1)
		e.waiters = append(e.waiters, ch)
		s.beginFetchLocked(key, e)
		s.mu.Unlock()
		s.metrics.miss(key)
		return s.await(ctx, ch)
	}
}

// Invalidate marks the given keys stale and triggers an immediate
// background refetch, so the next render reflects a completed mutation
// within one refetch cycle. Both mutation success handlers and the realtime
// change router funnel through here — the single merge point for the two
// freshness mechanisms.
//
// A key whose fetch is already in flight is flagged to refetch once more
// when that fetch completes: the in-flight response may predate the change
// that caused the invalidation.
func (s *Store) Invalidate(keys ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		e, ok := s.entries[key]
		if !ok || e.fetch == nil {
			continue
		}
		s.metrics.invalidated(key)

		if e.state == StateFetching {
			e.refetchOnDone = true
			continue
		}
		if e.hasData {
			e.state = StateStale
		} else {
			e.state = StateIdle
		}
		s.beginFetchLocked(key, e)
	}
}

// Mount registers a consumer for key so background refresh keeps it fresh.
func (s *Store) Mount(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(key).consumers++
}

// Unmount drops a consumer. When the last consumer unmounts, background
// refresh stops scheduling the key; an in-flight fetch is not cancelled and
// its result stays cached for the next mount.
func (s *Store) Unmount(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.consumers > 0 {
		e.consumers--
	}
}

// Start launches the interval-based background refresh loop.
func (s *Store) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.refreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.refreshPass()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts background refresh. In-flight fetches run to completion.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Refocus schedules an immediate refresh pass, the equivalent of the
// dashboard window regaining focus.
func (s *Store) Refocus() {
	s.refreshPass()
}

// State reports the current lifecycle state of a key.
func (s *Store) State(key Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		if e.state == StateFresh && s.now().Sub(e.fetchedAt) >= s.staleAfter {
			return StateStale
		}
		return e.state
	}
	return StateIdle
}

// refreshPass refetches every mounted key that is stale or errored.
func (s *Store) refreshPass() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.consumers == 0 || e.fetch == nil || e.state == StateFetching {
			continue
		}
		stale := e.state == StateStale || e.state == StateError ||
			(e.state == StateFresh && s.now().Sub(e.fetchedAt) >= s.staleAfter)
		if !stale {
			continue
		}
		if e.state == StateFresh {
			e.state = StateStale
		}
		s.beginFetchLocked(key, e)
	}
}

func (s *Store) ensureLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{state: StateIdle}
		s.entries[key] = e
	}
	return e
}

// beginFetchLocked transitions the entry to Fetching and launches the fetch
// goroutine. Callers hold the lock and must have checked that no fetch is
// in flight; this is the only place a fetch starts, which is what enforces
// the one-in-flight-fetch-per-key invariant.
func (s *Store) beginFetchLocked(key Key, e *entry) {
	e.state = StateFetching
	fn := e.fetch
	go s.runFetch(key, fn)
}

// runFetch executes one fetch (plus one automatic retry) and settles the
// entry. Caller contexts deliberately do not propagate here: a consumer
// giving up must not cancel a fetch other consumers are attached to, and a
// completed result is worth caching even if nobody is left waiting.
func (s *Store) runFetch(key Key, fn FetchFunc) {
	ctx := context.Background()

	data, err := fn(ctx)
	if err != nil {
		s.metrics.retried(key)
		data, err = fn(ctx)
	}

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}

	var r result
	if err != nil {
		e.state = StateError
		e.err = err
		r = result{data: e.data, err: err}
		s.metrics.fetchFailed(key)
		log.Printf("cache: fetch %s failed after retry: %v", key, err)
	} else {
		e.state = StateFresh
		e.data = data
		e.hasData = true
		e.fetchedAt = s.now()
		e.err = nil
		r = result{data: data}
		s.metrics.fetched(key)
	}

	waiters := e.waiters
	e.waiters = nil

	if e.refetchOnDone {
		e.refetchOnDone = false
		if e.hasData {
			e.state = StateStale
		} else {
			e.state = StateIdle
		}
		s.beginFetchLocked(key, e)
	}
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- r
	}
}

func (s *Store) await(ctx context.Context, ch chan result) (any, error) {
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
