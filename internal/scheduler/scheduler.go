package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"

	"ohlcvhub/internal/fetcher"
	"ohlcvhub/internal/logger"
)

// BatchFetcher is the part of fetcher.Service the scheduler needs.
type BatchFetcher interface {
	FetchMany(ctx context.Context, reqs []fetcher.Request, concurrency int) []fetcher.BatchResult
}

// Watch is one symbol polled on a cron schedule (seconds-first format).
type Watch struct {
	Symbol   string
	Interval string
	Limit    int
	Cron     string
}

// Scheduler manages the watchlist cron tasks. Watches that share a cron
// spec run as one batch.
type Scheduler struct {
	Cron        *cron.Cron
	Fetcher     BatchFetcher
	Concurrency int
	Ctx         context.Context

	groups map[string][]fetcher.Request
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, f BatchFetcher, concurrency int) *Scheduler {
	return &Scheduler{
		Cron:        cron.New(cron.WithSeconds()),
		Fetcher:     f,
		Concurrency: concurrency,
		Ctx:         ctx,
		groups:      make(map[string][]fetcher.Request),
	}
}

// RegisterAll registers one cron task per distinct schedule.
func (s *Scheduler) RegisterAll(watches []Watch) error {
	for _, w := range watches {
		s.groups[w.Cron] = append(s.groups[w.Cron], fetcher.Request{
			Symbol:   w.Symbol,
			Interval: w.Interval,
			Limit:    w.Limit,
		})
	}
	for _, spec := range s.specs() {
		if _, err := s.Cron.AddFunc(spec, func() { s.runGroup(spec) }); err != nil {
			return fmt.Errorf("register watch %q: %w", spec, err)
		}
	}
	logger.Infof("[scheduler] %d watches registered on %d schedules", len(watches), len(s.groups))
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	logger.Infof("[scheduler] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	logger.Infof("[scheduler] scheduler stopped")
}

// RunAllNow executes every registered watch immediately (RUN_ON_START).
func (s *Scheduler) RunAllNow() {
	for _, spec := range s.specs() {
		s.runGroup(spec)
	}
}

func (s *Scheduler) specs() []string {
	out := make([]string, 0, len(s.groups))
	for spec := range s.groups {
		out = append(out, spec)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) runGroup(spec string) (ok, failed int) {
	reqs := s.groups[spec]
	logger.Infof("[scheduler] running %d watches for %q", len(reqs), spec)
	for _, br := range s.Fetcher.FetchMany(s.Ctx, reqs, s.Concurrency) {
		if br.Err != nil {
			failed++
			logger.Errorf("[scheduler] %s %s: %v", br.Request.Symbol, br.Request.Interval, br.Err)
			continue
		}
		ok++
		res := br.Result
		last := res.Candles[len(res.Candles)-1]
		logger.Infof("[scheduler] %s %s: %d bars from %s, last close %.6g at %s",
			res.Symbol, res.Interval, len(res.Candles), res.Provider, last.Close, last.Time.Format("2006-01-02 15:04"))
	}
	return ok, failed
}
