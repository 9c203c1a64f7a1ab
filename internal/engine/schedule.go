package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/logging"
)

// ErrRunning is returned by Start when the engine is already started.
var ErrRunning = errors.New("engine: already running")

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
}

// Start registers the periodic passes, ingests whatever the feed already
// holds and, when configured, watches the feed directory for new lines.
// Persisted state is not read here; call Load first. A failed pass is
// logged and retried on the next tick.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.jobs != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		cancel()
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, watching := e.feed.(reloader)
	watching = watching && e.cfg.Feed.Watch

	sc := e.cfg.Schedule
	jobs := []job{
		{"extraction", sc.Extraction, func(ctx context.Context) {
			if !watching {
				_, _ = e.Reload()
			}
			if _, err := e.RunExtraction(ctx); err != nil {
				e.log.Debug("extraction pass skipped", zap.Error(err))
			}
		}},
		{"enrichment", sc.Enrichment, func(context.Context) { e.RunEnrichment(false) }},
		{"maintenance", sc.Maintenance, func(ctx context.Context) { e.RunMaintenance(ctx) }},
		{"persistence", sc.Persistence, func(ctx context.Context) {
			if err := e.Persist(ctx); err != nil {
				e.log.Error("persist failed", zap.Error(err))
			}
		}},
	}
	for _, j := range jobs {
		run := j.run
		_, err := s.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() { run(ctx) }),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = s.Shutdown()
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	if _, err := e.Reload(); err != nil {
		e.log.Warn("initial feed read incomplete", zap.Error(err))
	}
	if watching {
		dir := e.feed.(reloader).Dir()
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			err := activity.Watch(ctx, dir, logging.Named(e.log, "feed"), func() { _, _ = e.Reload() })
			if err != nil {
				e.log.Error("feed watcher stopped", zap.Error(err))
			}
		}()
	}

	s.Start()
	e.jobs = s
	e.cancel = cancel
	e.log.Info("engine started",
		zap.Duration("extraction", sc.Extraction),
		zap.Duration("enrichment", sc.Enrichment),
		zap.Duration("maintenance", sc.Maintenance),
		zap.Duration("persistence", sc.Persistence),
		zap.Bool("watch", watching))
	return nil
}

// Stop halts the timers and the watcher, closes the open session and
// writes a final snapshot. It is safe to call on an engine that was never
// started.
func (e *Engine) Stop(ctx context.Context) error {
	e.lifecycle.Lock()
	if e.jobs != nil {
		e.cancel()
		if err := e.jobs.Shutdown(); err != nil {
			e.log.Warn("scheduler shutdown", zap.Error(err))
		}
		e.wg.Wait()
		e.jobs, e.cancel = nil, nil
	}
	e.lifecycle.Unlock()

	e.ingestMu.Lock()
	e.tracker.Flush()
	e.ingestMu.Unlock()
	return e.Persist(ctx)
}
