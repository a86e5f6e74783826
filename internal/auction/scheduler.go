package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot/auction-engine/internal/metrics"
	"github.com/openlot/auction-engine/internal/model"
)

// DefaultSweepInterval is how often the lifecycle sweep runs.
const DefaultSweepInterval = 2 * time.Second

// Scheduler moves auctions through their lifecycle purely as a function of
// wall-clock time: scheduled → live when the window opens, live → ended when
// it closes. It shares the engine's per-auction locks so a sweep never races
// the buy-now short circuit, and each transition is a compare-and-swap so an
// auction_ended event fires at most once.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a lifecycle scheduler driving the given engine's
// store and event channel. interval <= 0 selects DefaultSweepInterval.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep. Must be called in a goroutine.
func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("lifecycle scheduler started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stopCh:
			slog.Info("lifecycle scheduler stopped")
			return
		}
	}
}

// Stop terminates the sweep loop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if err := s.Sweep(ctx); err != nil {
		slog.Error("lifecycle sweep failed", "err", err)
	}
}

// Sweep scans for auctions whose window has opened or closed and applies
// the corresponding transitions. Sweeps are idempotent: re-running against
// an already-transitioned auction is a no-op. A failure on one auction is
// logged and does not abort the rest of the sweep.
func (s *Scheduler) Sweep(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	now := s.engine.now().UTC()
	due, err := s.engine.store.ListAuctionsDue(ctx, now)
	if err != nil {
		return err
	}

	for _, a := range due {
		if err := s.sweepOne(ctx, &a, now); err != nil {
			slog.Error("sweep transition failed", "auction", a.ID, "state", a.State, "err", err)
		}
	}
	return nil
}

func (s *Scheduler) sweepOne(ctx context.Context, a *model.Auction, now time.Time) error {
	// Hold the same lock as bid acceptance: the buy-now path may be ending
	// this auction concurrently. A busy lock is skipped, not an error; the
	// next sweep picks the auction up again.
	if err := s.engine.locks.acquire(ctx, a.ID, s.engine.lockWait); err != nil {
		slog.Warn("sweep skipped busy auction", "auction", a.ID)
		return nil
	}
	defer s.engine.locks.release(a.ID)

	switch a.State {
	case model.StateScheduled:
		if now.Before(a.EndTime) {
			return s.open(ctx, a)
		}
		// Window already closed without ever going live.
		return s.settle(ctx, a, model.StateScheduled)

	case model.StateLive:
		if !now.Before(a.EndTime) {
			return s.settle(ctx, a, model.StateLive)
		}
	}
	return nil
}

func (s *Scheduler) open(ctx context.Context, a *model.Auction) error {
	swapped, err := s.engine.store.TransitionAuction(ctx, a.ID, model.StateScheduled, model.StateLive, "", decimal.Zero)
	if err != nil || !swapped {
		return err
	}

	slog.Info("auction opened", "auction", a.ID, "ends", a.EndTime)
	s.engine.publish(Event{Type: EventAuctionStarted, AuctionID: a.ID})
	return nil
}

// settle determines the winner from the ledger and ends the auction. The
// highest standing bid wins unless it fails to meet the reserve price, in
// which case the auction ends with no winner.
func (s *Scheduler) settle(ctx context.Context, a *model.Auction, from model.AuctionState) error {
	latest, err := s.engine.store.GetLatestBid(ctx, a.ID)
	if err != nil {
		return err
	}

	winnerID := ""
	finalAmount := decimal.Zero
	if latest != nil && (!a.HasReserve() || latest.Amount.GreaterThanOrEqual(a.ReservePrice)) {
		winnerID = latest.BidderID
		finalAmount = latest.Amount
	}

	swapped, err := s.engine.store.TransitionAuction(ctx, a.ID, from, model.StateEnded, winnerID, finalAmount)
	if err != nil || !swapped {
		return err
	}

	slog.Info("auction ended",
		"auction", a.ID,
		"winner", winnerID,
		"final_amount", finalAmount.String(),
	)
	metrics.AuctionsEnded.WithLabelValues("expired").Inc()

	ev := Event{Type: EventAuctionEnded, AuctionID: a.ID}
	if winnerID != "" {
		ev.WinnerID = winnerID
		ev.FinalAmount = finalAmount.String()
	}
	s.engine.publish(ev)
	return nil
}
