// Package scheduler runs the five cooperative periodic jobs that drive
// time-based state transitions and checks: closing expired markets, closing
// and voting-transitioning expired private bets, force-resolving expired
// voting bets, refreshing the cached leaderboard, and scanning open markets
// for liquidity warnings.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/evetabi/prediction/internal/repository"
	"github.com/evetabi/prediction/internal/service"
	"golang.org/x/sync/errgroup"
)

// Scheduler wires together the services and runs the five job
// goroutines. Call Start(ctx) once from main(); cancel the context to shut
// it down gracefully.
type Scheduler struct {
	marketSvc     *service.MarketService
	privateBetSvc *service.PrivateBetService
	liquidityMon  *service.LiquidityMonitor
	userRepo      *repository.UserRepository
	logger        *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	marketSvc *service.MarketService,
	privateBetSvc *service.PrivateBetService,
	liquidityMon *service.LiquidityMonitor,
	userRepo *repository.UserRepository,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		marketSvc:     marketSvc,
		privateBetSvc: privateBetSvc,
		liquidityMon:  liquidityMon,
		userRepo:      userRepo,
		logger:        logger,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.tickLoop(ctx, "close_expired_markets", time.Minute, s.closeExpiredMarkets)
	go s.tickLoop(ctx, "close_expired_private_bets", time.Minute, s.closeExpiredPrivateBets)
	go s.tickLoop(ctx, "resolve_expired_voting", 5*time.Minute, s.resolveExpiredVoting)
	go s.tickLoop(ctx, "refresh_leaderboard", 5*time.Minute, s.refreshLeaderboard)
	go s.tickLoop(ctx, "liquidity_scan", time.Minute, s.scanLiquidity)
	s.logger.Info("scheduler started")
}

// ──────────────────────────────────────────────────────────────────────────────
// tickLoop — shared ticker/panic-recovery/shutdown shape for every job
// ──────────────────────────────────────────────────────────────────────────────

// tickLoop runs fn on every tick of a ticker with the given cadence until ctx
// is cancelled. Each job is a short-lived, idempotent transaction (or set of
// them) per spec.md §4.6, so a missed or doubled tick cannot corrupt state.
func (s *Scheduler) tickLoop(ctx context.Context, name string, cadence time.Duration, fn func(context.Context) error) {
	defer s.recoverAndLog(name)

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(name + ": shutting down")
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.Error(name+": job failed", "err", err)
			}
		}
	}
}

// recoverAndLog is deferred inside each goroutine to catch unexpected
// panics, log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop", "loop", loop, "panic", r)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────────────────────────────────

// closeExpiredMarkets sets status=trading_closed for any open market whose
// closes_at has passed.
func (s *Scheduler) closeExpiredMarkets(ctx context.Context) error {
	n, err := s.marketSvc.CloseExpiredMarkets(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("closed expired markets", "count", n)
	}
	return nil
}

// closeExpiredPrivateBets transitions open bets past closes_at to voting (or
// cancels+refunds one-sided/under-filled ones).
func (s *Scheduler) closeExpiredPrivateBets(ctx context.Context) error {
	n, err := s.privateBetSvc.CloseExpiredOpen(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("closed expired private bets", "count", n)
	}
	return nil
}

// resolveExpiredVoting force-settles voting-phase bets past their deadline.
func (s *Scheduler) resolveExpiredVoting(ctx context.Context) error {
	n, err := s.privateBetSvc.ResolveExpiredVoting(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("resolved expired voting bets", "count", n)
	}
	return nil
}

// refreshLeaderboard rebuilds the cached top-N users by lifetime profit.
func (s *Scheduler) refreshLeaderboard(ctx context.Context) error {
	const topN = 100
	users, err := s.userRepo.ListLeaderboard(ctx, topN)
	if err != nil {
		return err
	}
	s.logger.Info("refreshed leaderboard", "entries", len(users))
	return nil
}

// scanLiquidity runs the house exposure monitor's sweep over all open
// markets. Not one of spec.md §4.6's four named jobs, but driven the same
// cooperative way since it shares the read-only, idempotent-per-tick shape.
func (s *Scheduler) scanLiquidity(ctx context.Context) error {
	report, err := s.liquidityMon.Scan(ctx)
	if err != nil {
		return err
	}
	if report != nil && report.FlaggedMarkets > 0 {
		s.logger.Warn("liquidity scan flagged markets",
			"scanned", report.ScannedMarkets, "flagged", report.FlaggedMarkets)
	}
	return nil
}

// RunOnceFanOut runs every job exactly once, concurrently, and returns the
// first error encountered (if any) — used by health checks / manual "kick
// the scheduler now" admin triggers instead of waiting for the next tick.
func (s *Scheduler) RunOnceFanOut(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.closeExpiredMarkets(gctx) })
	g.Go(func() error { return s.closeExpiredPrivateBets(gctx) })
	g.Go(func() error { return s.resolveExpiredVoting(gctx) })
	g.Go(func() error { return s.refreshLeaderboard(gctx) })
	g.Go(func() error { return s.scanLiquidity(gctx) })
	return g.Wait()
}
