package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultStopTimeout = 2 * time.Second

// Scheduler drives an Engine on a fixed interval. The periodic loop and on-demand
// calls share the same Engine, so they share its lock and cooldown.
type Scheduler struct {
	engine      *Engine
	interval    time.Duration
	stopTimeout time.Duration
	logger      *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(engine *Engine, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		engine:      engine,
		interval:    interval,
		stopTimeout: defaultStopTimeout,
		logger:      logger,
	}
}

func (s *Scheduler) Engine() *Engine {
	return s.engine
}

// RunForever evaluates every interval until ctx is cancelled. Cycle errors are
// logged and never end the loop. Cancellation is only observed between cycles.
func (s *Scheduler) RunForever(ctx context.Context) {
	cfg := s.engine.Config()
	s.logger.WithFields(logrus.Fields{
		"symbol":   cfg.Symbol,
		"dry_run":  cfg.DryRun,
		"interval": s.interval.String(),
	}).Info("Starting trading loop")

	for ctx.Err() == nil {
		s.runCycle(context.WithoutCancel(ctx))

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	s.logger.WithField("symbol", cfg.Symbol).Info("Trading loop stopped")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", fmt.Sprint(r)).Error("Bot iteration panicked")
		}
	}()

	result, err := s.engine.Evaluate(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("kind", ErrorKind(err)).Error("Bot iteration failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"status": result.Status,
		"action": result.Action,
	}).Debug("Bot iteration finished")
}

// RunOnce performs a single evaluation and returns its error to the caller.
func (s *Scheduler) RunOnce(ctx context.Context) (*EvaluationResult, error) {
	return s.engine.Evaluate(ctx)
}

// ForceTrade validates raw and executes it through the engine.
func (s *Scheduler) ForceTrade(ctx context.Context, raw string) (*ExecutionResult, error) {
	action, err := ParseAction(raw)
	if err != nil {
		return nil, err
	}
	return s.engine.ForceTrade(ctx, action)
}

// Start launches the periodic loop. It returns false if the loop was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()
	return true
}

// Stop cancels the loop and waits up to stopTimeout for it to exit. It reports
// whether the loop is stopped on return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.runningLocked() {
		s.mu.Unlock()
		return true
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		return true
	case <-time.After(s.stopTimeout):
		s.logger.WithField("timeout", s.stopTimeout.String()).Warn("Trading loop did not stop in time")
		return false
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Scheduler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
