// Package scheduler runs the periodic poll cycle: for every source it
// extracts articles and hands them to the delivery fan-out.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"feedforwarder/internal/delivery"
	"feedforwarder/internal/fetcher"
	"feedforwarder/internal/filter"
	"feedforwarder/internal/metrics"
	"feedforwarder/internal/model"
	"feedforwarder/internal/storage"
)

// ErrCycleRunning is returned when a cycle is triggered while another one
// is still in progress.
var ErrCycleRunning = errors.New("poll cycle already running")

const (
	defaultInterval = 30 * time.Minute
	defaultWorkers  = 4
)

// Extractor turns a source locator into articles.
type Extractor interface {
	Extract(ctx context.Context, locator string) ([]model.Article, error)
}

// Scheduler polls all sources on a fixed interval.
type Scheduler struct {
	store     storage.Storage
	extractor Extractor
	fanout    *delivery.Fanout
	log       *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	workers   int

	cycle sync.Mutex

	// Per-source pipeline locks shared by cycles and on-demand checks.
	sourcesMu sync.Mutex
	sources   map[int64]*sync.Mutex

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(store storage.Storage, ext Extractor, fanout *delivery.Fanout, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		extractor: ext,
		fanout:    fanout,
		log:       log,
		interval:  defaultInterval,
		workers:   defaultWorkers,
		sources:   make(map[int64]*sync.Mutex),
	}
}

// SetInterval overrides the default 30-minute poll interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// SetWorkers sets how many sources are processed concurrently.
func (s *Scheduler) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// SetMetrics enables metric recording.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start runs one cycle right away and then one per interval until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger)))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.trigger(ctx) }))

	s.cron = c
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.trigger(ctx)
	}()
	c.Start()

	s.log.Info("scheduler started", "interval", s.interval, "workers", s.workers)
	return nil
}

// Stop cancels the running cycle and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) trigger(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleRunning) {
		s.log.Error("poll cycle", "error", err)
	}
}

// RunCycle visits every source once. Sources are independent: a failure in
// one is logged and counted without affecting the others. If a cycle is
// already running it returns ErrCycleRunning without doing anything.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	if !s.cycle.TryLock() {
		s.log.Warn("poll cycle still running, skipping trigger")
		s.metrics.CycleFinished(metrics.CycleSkipped, 0)
		return CycleReport{}, ErrCycleRunning
	}
	defer s.cycle.Unlock()

	start := time.Now()

	sources, err := s.listSources(ctx)
	if err != nil {
		return CycleReport{}, err
	}

	var (
		mu     sync.Mutex
		report = CycleReport{Sources: len(sources)}
		g      errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sr, err := s.CheckSource(ctx, src)
			mu.Lock()
			report.add(sr, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.CycleFinished(metrics.CycleCompleted, time.Since(start))
	s.log.Info("poll cycle finished",
		"sources", report.Sources,
		"failed", report.FailedSources,
		"articles", report.Articles,
		"delivered", report.Delivered,
		"duration", time.Since(start))
	return report, nil
}

func (s *Scheduler) listSources(ctx context.Context) ([]model.Source, error) {
	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	var sources []model.Source
	for _, owner := range owners {
		owned, err := s.store.ListSources(ctx, owner)
		if err != nil {
			s.log.Error("list sources", "user_id", owner, "error", err)
			continue
		}
		sources = append(sources, owned...)
	}
	return sources, nil
}

// sourceLock returns the lock serializing the pipeline of one source.
func (s *Scheduler) sourceLock(id int64) *sync.Mutex {
	s.sourcesMu.Lock()
	defer s.sourcesMu.Unlock()
	l, ok := s.sources[id]
	if !ok {
		l = &sync.Mutex{}
		s.sources[id] = l
	}
	return l
}

// CheckSource runs the extract, filter, dedup and deliver pipeline for one
// source. Runs for the same source never overlap, whether they come from a
// cycle or an on-demand check. An extraction failure is reported in
// SourceReport.FetchErr and treated as zero articles. Store failures and
// panics abort the source and are returned as an error.
func (s *Scheduler) CheckSource(ctx context.Context, src model.Source) (report SourceReport, err error) {
	lock := s.sourceLock(src.ID)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.metrics.SourceFailed()
			s.log.Error("process source", "source_id", src.ID, "url", src.URL, "error", err)
		}
	}()

	targets, err := s.store.ListTargets(ctx, src.ID)
	if err != nil {
		return report, fmt.Errorf("list targets: %w", err)
	}

	articles, err := s.extractor.Extract(ctx, src.URL)
	if err != nil {
		report.FetchErr = err
		s.metrics.FetchFailed(fetchKind(err))
		s.log.Warn("extract source", "source_id", src.ID, "url", src.URL, "error", err)
		return report, nil
	}
	report.Articles = len(articles)
	if len(articles) == 0 {
		return report, nil
	}

	filters, err := s.store.ListFilters(ctx, src.ID)
	if err != nil {
		return report, fmt.Errorf("list filters: %w", err)
	}
	matcher := filter.New(filters)

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := s.fanout.Deliver(ctx, delivery.Job{
			Source:  src,
			Matcher: matcher,
			Targets: targets,
			Article: a,
		})
		if err != nil {
			return report, fmt.Errorf("deliver %s: %w", a.Link, err)
		}
		report.record(res)
	}

	if report.Delivered > 0 {
		s.log.Info("source delivered", "source_id", src.ID, "url", src.URL, "count", report.Delivered)
	}
	return report, nil
}

func fetchKind(err error) string {
	switch {
	case errors.Is(err, fetcher.ErrParse):
		return "parse"
	case errors.Is(err, fetcher.ErrFetch):
		return "fetch"
	}
	return "other"
}
