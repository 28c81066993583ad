// Package scheduler runs the pipeline on a cron schedule and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/geonews-etl/internal/pipeline"
)

// ErrStopped is returned by Trigger after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Scheduler starts runs in the background. At most one run is in flight;
// overlapping triggers are refused with pipeline.ErrRunInProgress.
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a scheduler. Runs inherit a context that Stop cancels.
func New(runner Runner, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers schedule (standard five-field cron or a descriptor such as
// "@every 6h") and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return fmt.Errorf("add cron job %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", schedule)
	return nil
}

func (s *Scheduler) tick() {
	switch err := s.Trigger(); {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Warn("scheduled run skipped, previous run still in progress")
	case err != nil:
		s.logger.Debug("scheduled run not started", "error", err)
	}
}

// Trigger starts a run in the background and returns immediately.
func (s *Scheduler) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return pipeline.ErrRunInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.runner.Run(s.ctx); err != nil {
			s.logger.Debug("background run ended with error", "error", err)
		}
	}()
	return nil
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop halts the cron loop and waits for the in-flight run. If ctx ends
// first the run is cancelled and Stop returns ctx's error after it exits.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	<-s.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
