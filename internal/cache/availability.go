// Package cache implements the availability lookup layer: a keyed,
// time-unaware memoization store in front of a debounced fetch path.
// Bursts of lookups for one (provider, requester, date) stream collapse
// into a single backend call, and a generation token guarantees that a
// network response which lost the race never overwrites fresher state.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/pkg/debounce"
	"github.com/legalconnect/scheduler/pkg/logger"
	"github.com/legalconnect/scheduler/pkg/metrics"
)

// ErrSuperseded is delivered to waiters whose request was overtaken by a
// newer request or by a wholesale invalidation. It is a cancellation
// signal, not a failure.
var ErrSuperseded = errors.New("availability request superseded")

// DefaultDebounceWindow is the quiet window for coalescing lookups.
const DefaultDebounceWindow = 300 * time.Millisecond

// fetchTimeout bounds a dispatched fetch once it has been detached from
// its callers' contexts.
const fetchTimeout = 15 * time.Second

// Key identifies one availability stream.
type Key struct {
	ProviderID  int64
	RequesterID int64
	Date        string
}

func (k Key) String() string {
	return fmt.Sprintf("p%d.r%d.%s", k.ProviderID, k.RequesterID, k.Date)
}

// Result carries a resolved fetch to a waiter.
type Result struct {
	Intervals []model.BusyInterval
	Err       error
}

// FetchFunc performs the underlying network lookup.
type FetchFunc func(ctx context.Context, key Key) ([]model.BusyInterval, error)

// Availability memoizes busy intervals per key. Entries never expire by
// time: staleness after a mutation is a correctness issue handled by
// InvalidateAll, not a TTL.
type Availability struct {
	fetch   FetchFunc
	deb     *debounce.Debouncer
	store   *gocache.Cache
	log     *logger.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	pendingKey Key
	waiters    []chan Result
	pendingCtx context.Context
	loading    map[string]bool
}

// New builds an Availability cache over fetch. A non-positive window
// makes dispatch synchronous (used in tests).
func New(fetch FetchFunc, window time.Duration, log *logger.Logger, m *metrics.Metrics) *Availability {
	return &Availability{
		fetch:   fetch,
		deb:     debounce.New(window),
		store:   gocache.New(gocache.NoExpiration, 0),
		log:     log.WithComponent("availability-cache"),
		metrics: m,
		loading: make(map[string]bool),
	}
}

// Peek returns the memoized intervals for key without touching the
// network or the debounce window. The second return distinguishes a
// fetched-empty entry from no data at all.
func (a *Availability) Peek(key Key) ([]model.BusyInterval, bool) {
	v, ok := a.store.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.([]model.BusyInterval), true
}

// Loading reports whether a fetch for key is pending or in flight.
func (a *Availability) Loading(key Key) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading[key.String()]
}

// Request resolves the busy intervals for key. A memo hit resolves
// synchronously on the returned channel with no debounce delay. On a
// miss the call joins the debounced stream: every caller inside the
// quiet window receives the same resolved value, and callers whose key
// was overtaken by a newer one receive ErrSuperseded. The caller's ctx
// contributes values to the eventual fetch but does not cancel it;
// cancellation only abandons this caller's wait.
func (a *Availability) Request(ctx context.Context, key Key) <-chan Result {
	ch := make(chan Result, 1)

	if intervals, ok := a.Peek(key); ok {
		a.countHit()
		ch <- Result{Intervals: intervals}
		close(ch)
		return ch
	}
	a.countMiss()

	a.mu.Lock()
	if len(a.waiters) > 0 && a.pendingKey != key {
		// A different stream takes over: drop the old waiters.
		a.failWaitersLocked(ErrSuperseded)
	}
	if len(a.waiters) > 0 {
		a.countCoalesced()
	}
	a.pendingKey = key
	a.pendingCtx = ctx
	a.waiters = append(a.waiters, ch)
	a.loading[key.String()] = true
	a.mu.Unlock()

	a.deb.Do(func(gen uint64) {
		a.dispatch(key, gen)
	})

	return ch
}

// InvalidateAll clears every entry and invalidates in-flight fetches.
// Called after any mutating event: booking success, conflict failure, or
// an external refresh signal.
func (a *Availability) InvalidateAll() {
	a.store.Flush()
	a.deb.Cancel()

	a.mu.Lock()
	a.failWaitersLocked(ErrSuperseded)
	a.loading = make(map[string]bool)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.CacheInvalidations.Inc()
	}
}

func (a *Availability) dispatch(key Key, gen uint64) {
	a.mu.Lock()
	base := a.pendingCtx
	a.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	// Callers are typically request-scoped and often gone before the
	// quiet window elapses. The fetch keeps the last caller's context
	// values but not its cancellation, so a fire-and-forget prefetch
	// still lands in the store.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), fetchTimeout)
	defer cancel()

	intervals, err := a.fetch(ctx, key)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.deb.Current(gen) || a.pendingKey != key {
		// Lost the race to a newer request or an invalidation: drop.
		if a.metrics != nil {
			a.metrics.StaleResultsDropped.Inc()
		}
		a.log.Debug("discarding superseded fetch result", "key", key.String())
		return
	}

	delete(a.loading, key.String())
	if err == nil {
		a.store.Set(key.String(), intervals, gocache.NoExpiration)
	}

	res := Result{Intervals: intervals, Err: err}
	for _, ch := range a.waiters {
		ch <- res
		close(ch)
	}
	a.waiters = nil
}

func (a *Availability) failWaitersLocked(err error) {
	for _, ch := range a.waiters {
		ch <- Result{Err: err}
		close(ch)
	}
	a.waiters = nil
	delete(a.loading, a.pendingKey.String())
}

func (a *Availability) countHit() {
	if a.metrics != nil {
		a.metrics.CacheHits.Inc()
	}
}

func (a *Availability) countMiss() {
	if a.metrics != nil {
		a.metrics.CacheMisses.Inc()
	}
}

func (a *Availability) countCoalesced() {
	if a.metrics != nil {
		a.metrics.FetchesCoalesced.Inc()
	}
}
