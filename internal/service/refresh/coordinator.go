// Package refresh keeps the availability view current while a day is on
// screen: a fixed-interval poll plus an external signal channel, both
// funnelled through the availability cache so every consumer sees the
// same freshness rules.
package refresh

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/legalconnect/scheduler/internal/cache"
	"github.com/legalconnect/scheduler/pkg/logger"
	"github.com/legalconnect/scheduler/pkg/messaging"
	"github.com/legalconnect/scheduler/pkg/metrics"
)

// DefaultPollInterval matches the cadence the calendar view refreshes at.
const DefaultPollInterval = 20 * time.Second

// Coordinator drives background refreshes for at most one watched
// (provider, requester, date) triple at a time. Watch replaces any
// previous watch; Stop ends it. Poll failures are logged and the cached
// view is kept, never cleared, so a flaky backend degrades to stale
// rather than empty.
type Coordinator struct {
	availability *cache.Availability
	broker       messaging.Broker
	channel      string
	interval     time.Duration
	log          *logger.Logger
	metrics      *metrics.Metrics

	mu     sync.Mutex
	key    cache.Key
	active bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subCancel context.CancelFunc
	subWG     sync.WaitGroup
}

func NewCoordinator(availability *cache.Availability, broker messaging.Broker, channel string, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Coordinator{
		availability: availability,
		broker:       broker,
		channel:      channel,
		interval:     interval,
		log:          log.WithComponent("refresh"),
		metrics:      m,
	}
}

// Start subscribes to the external refresh channel. Safe to call with a
// nil broker, in which case only polling is active.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.broker == nil {
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := c.broker.Subscribe(subCtx, c.channel)
	if err != nil {
		cancel()
		return err
	}
	c.subCancel = cancel

	c.subWG.Add(1)
	go func() {
		defer c.subWG.Done()
		for {
			select {
			case <-subCtx.Done():
				return
			case payload, ok := <-msgs:
				if !ok {
					return
				}
				c.handleSignal(payload)
			}
		}
	}()
	return nil
}

// Watch begins polling availability for the given key, replacing any
// previous watch. The interval restarts from zero on every call, so a
// selection change never inherits a half-elapsed timer.
func (c *Coordinator) Watch(ctx context.Context, key cache.Key) {
	c.mu.Lock()
	c.stopLocked()
	pollCtx, cancel := context.WithCancel(ctx)
	c.key = key
	c.active = true
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.poll(pollCtx, key)
}

// Stop ends the current watch, if any. The cache keeps its entries.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// Shutdown stops the watch and the signal subscription.
func (c *Coordinator) Shutdown() {
	c.Stop()
	if c.subCancel != nil {
		c.subCancel()
	}
	c.subWG.Wait()
}

// Watching reports the currently watched key.
func (c *Coordinator) Watching() (cache.Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.active
}

func (c *Coordinator) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.active = false
}

func (c *Coordinator) poll(ctx context.Context, key cache.Key) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refetch(ctx, key)
		}
	}
}

// refetch invalidates and re-requests the watched key. Going through
// the cache means a poll result and a user-initiated fetch can never
// disagree about which response is current.
func (c *Coordinator) refetch(ctx context.Context, key cache.Key) {
	if c.metrics != nil {
		c.metrics.PollCycles.Inc()
	}
	c.availability.InvalidateAll()

	select {
	case <-ctx.Done():
	case res := <-c.availability.Request(ctx, key):
		if res.Err != nil {
			if c.metrics != nil {
				c.metrics.PollFailures.Inc()
			}
			c.log.Warn("availability poll failed",
				"provider_id", key.ProviderID, "date", key.Date, "error", res.Err.Error())
		}
	}
}

func (c *Coordinator) handleSignal(payload []byte) {
	if c.metrics != nil {
		c.metrics.RefreshSignals.Inc()
	}

	var sig messaging.RefreshSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		c.log.Warn("discarding malformed refresh signal", "error", err.Error())
		return
	}

	c.mu.Lock()
	key, active := c.key, c.active
	c.mu.Unlock()

	// Signals for other providers still invalidate: the requester side
	// of a cached view may involve them.
	c.log.Info("external refresh signal",
		"provider_id", sig.ProviderID, "reason", sig.Reason)
	c.availability.InvalidateAll()

	if active {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case <-ctx.Done():
		case <-c.availability.Request(ctx, key):
		}
	}
}
