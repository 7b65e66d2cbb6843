/*
scheduler.go - Periodic rate card refresh

PURPOSE:
  Several server instances can share one database. A PUT on one instance
  stores a new rate card version; the others pick it up here by polling
  the store and swapping their snapshot when the version changes.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Only parses the stored document when its version differs
  - A bad stored document is logged and the previous snapshot kept

CONFIGURATION:
  - CheckInterval: How often to check (FARE_RATE_CARD_REFRESH, default 30s)
  - Enabled: false when the interval is zero

USAGE:
  scheduler := NewRateCardScheduler(handler, 30*time.Second)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RefreshRateCard, PutRateCard
*/
package api

import (
	"context"
	"sync"
	"time"
)

// RateCardScheduler keeps a handler's rate card in step with the store.
type RateCardScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRateCardScheduler creates a scheduler. A non-positive interval disables it.
func NewRateCardScheduler(handler *Handler, interval time.Duration) *RateCardScheduler {
	return &RateCardScheduler{
		Handler:       handler,
		CheckInterval: interval,
		Enabled:       interval > 0,
	}
}

// Start begins polling.
func (rs *RateCardScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Handler.Logger.Info().Msg("rate card refresh disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run()

	rs.Handler.Logger.Info().Dur("interval", rs.CheckInterval).Msg("rate card refresh started")
}

// Stop stops polling and waits for an in-flight check.
func (rs *RateCardScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Handler.Logger.Info().Msg("rate card refresh stopped")
	}
}

func (rs *RateCardScheduler) run() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow()
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one check immediately.
func (rs *RateCardScheduler) RunNow() {
	timeout := rs.CheckInterval
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := rs.Handler.RefreshRateCard(ctx); err != nil {
		rs.Handler.Logger.Error().Err(err).Msg("rate card refresh failed, keeping current settings")
	}
}
