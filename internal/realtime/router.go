// Package realtime routes push notifications from the gateway into targeted
// cache invalidations. It never merges notification payloads into the
// cache: a notification only says "this collection changed", and the
// refetch it triggers is what the UI ends up showing. Out-of-order and
// duplicated notifications are therefore harmless — the final state always
// reflects the store's truth at fetch time.
package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentdeck/agentdeck/internal/cache"
	"github.com/agentdeck/agentdeck/internal/gateway"
)

// DefaultLivePulse is how long an entity's live flag stays set after a
// change notification mentions it.
const DefaultLivePulse = 3 * time.Second

// Sink receives every routed change event, after invalidation. The API
// server's websocket hub hangs off this.
type Sink func(gateway.ChangeEvent)

type subKey struct {
	collection string
	filter     string
}

type channel struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Router owns the push-channel side of freshness. One underlying gateway
// subscription is shared per distinct (collection, filter) pair and torn
// down when its last consumer unsubscribes. A dropped channel reconnects
// with exponential backoff; interval polling remains the freshness fallback
// while disconnected, so the system degrades to polling, never to silence.
type Router struct {
	gw      gateway.Gateway
	store   *cache.Store
	pulse   time.Duration
	sink    Sink
	metrics *Metrics

	// newBackoff builds the reconnect policy per channel; replaced in tests.
	newBackoff func() backoff.BackOff

	mu       sync.Mutex
	bindings map[string][]cache.Key
	channels map[subKey]*channel
	live     map[string]*time.Timer
	closed   bool
}

// Option configures a Router.
type Option func(*Router)

// WithLivePulse overrides the live-flag duration.
func WithLivePulse(d time.Duration) Option {
	return func(r *Router) { r.pulse = d }
}

// WithSink attaches an event sink.
func WithSink(s Sink) Option {
	return func(r *Router) { r.sink = s }
}

// SetSink attaches an event sink after construction. Useful when the
// consumer (the API server's websocket hub) is built after the router.
func (r *Router) SetSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = s
}

// WithMetrics attaches Prometheus collectors to the router.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithBackoff overrides the reconnect policy factory.
func WithBackoff(f func() backoff.BackOff) Option {
	return func(r *Router) { r.newBackoff = f }
}

// New creates a router over the given gateway and cache store.
func New(gw gateway.Gateway, store *cache.Store, opts ...Option) *Router {
	r := &Router{
		gw:       gw,
		store:    store,
		pulse:    DefaultLivePulse,
		bindings: make(map[string][]cache.Key),
		channels: make(map[subKey]*channel),
		live:     make(map[string]*time.Timer),
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0 // keep trying; polling covers the gap
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind registers which cache keys a collection's changes touch. Every
// notification for the collection invalidates exactly these keys.
func (r *Router) Bind(collection string, keys ...cache.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[collection] = append(r.bindings[collection], keys...)
}

// Handle is one consumer's claim on a shared push channel.
type Handle struct {
	router *Router
	key    subKey
	once   sync.Once
}

// Unsubscribe releases the claim. The last release tears the underlying
// channel down immediately. Safe to call more than once.
func (h *Handle) Unsubscribe() {
	h.once.Do(func() { h.router.release(h.key) })
}

// Subscribe opens (or joins) the push channel for (collection, filter).
// Consumers of the same pair share one underlying gateway subscription.
func (r *Router) Subscribe(collection, filter string) (*Handle, error) {
	key := subKey{collection: collection, filter: filter}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, &gateway.SubscriptionError{Collection: collection, Err: context.Canceled}
	}

	if ch, ok := r.channels[key]; ok {
		ch.refs++
		return &Handle{router: r, key: key}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{refs: 1, cancel: cancel, done: make(chan struct{})}
	r.channels[key] = ch
	go r.run(ctx, key, ch)

	return &Handle{router: r, key: key}, nil
}

func (r *Router) release(key subKey) {
	r.mu.Lock()
	ch, ok := r.channels[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	ch.refs--
	if ch.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.channels, key)
	r.mu.Unlock()

	ch.cancel()
	<-ch.done
}

// run maintains one gateway subscription, redialing with backoff until the
// channel is released.
func (r *Router) run(ctx context.Context, key subKey, ch *channel) {
	defer close(ch.done)

	policy := r.newBackoff()
	for {
		sub, err := r.gw.Subscribe(ctx, key.collection, key.filter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.metrics.reconnect(key.collection)
			wait := policy.NextBackOff()
			log.Printf("realtime: subscribe %s failed, retrying in %s: %v", key.collection, wait, err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		policy.Reset()
		r.pump(ctx, sub)
		sub.Close()

		if ctx.Err() != nil {
			return
		}
		r.metrics.reconnect(key.collection)
		wait := policy.NextBackOff()
		log.Printf("realtime: channel %s dropped, reconnecting in %s", key.collection, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) pump(ctx context.Context, sub gateway.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			r.handleEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent is the single merge point for push-driven freshness: mark the
// collection's cache keys stale (triggering refetch) and pulse the live
// flag for the touched entity.
func (r *Router) handleEvent(ev gateway.ChangeEvent) {
	r.mu.Lock()
	keys := r.bindings[ev.Collection]
	sink := r.sink
	r.mu.Unlock()

	r.metrics.event(ev.Collection, string(ev.Kind))

	if len(keys) > 0 {
		r.store.Invalidate(keys...)
	}

	if id := ev.RecordID(); id != "" {
		r.markLive(id)
	}

	if sink != nil {
		sink(ev)
	}
}

// markLive sets the transient live flag for an entity id, self-clearing
// after the pulse duration. The flag is a visual affordance only and must
// never gate data display.
func (r *Router) markLive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if t, ok := r.live[id]; ok {
		t.Reset(r.pulse)
		return
	}
	r.live[id] = time.AfterFunc(r.pulse, func() {
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
	})
}

// IsLive reports whether an entity changed within the last pulse window.
func (r *Router) IsLive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[id]
	return ok
}

// OpenChannels reports how many underlying push channels are open.
func (r *Router) OpenChannels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Close tears down every channel and clears live flags.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	channels := make([]*channel, 0, len(r.channels))
	for key, ch := range r.channels {
		delete(r.channels, key)
		channels = append(channels, ch)
	}
	for id, t := range r.live {
		t.Stop()
		delete(r.live, id)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		ch.cancel()
		<-ch.done
	}
}
