package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"spendly/internal/log"
)

// Processor is the trigger contract of the recurrence engine.
type Processor interface {
	ProcessAll(ctx context.Context, now time.Time) (ProcessReport, error)
}

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	// Interval is how often the engine runs (default: 1h)
	Interval time.Duration

	// RunOnStart triggers one tick as soon as the loop starts (default: true)
	RunOnStart bool
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: true,
	}
}

// Scheduler triggers the engine periodically and never lets two runs overlap.
type Scheduler struct {
	engine Processor
	config SchedulerConfig
	clock  func() time.Time
	ticks  singleflight.Group
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler; a nil clock means time.Now.
func NewScheduler(engine Processor, config SchedulerConfig, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		engine: engine,
		config: config,
		clock:  clock,
		logger: log.Default(log.ComponentScheduler),
	}
}

// Tick runs the engine once. Callers arriving while a run is in flight wait
// for it and receive its result instead of starting another; shared reports
// whether that happened.
func (s *Scheduler) Tick(ctx context.Context) (report ProcessReport, shared bool, err error) {
	v, err, shared := s.ticks.Do("process", func() (any, error) {
		start := time.Now()
		now := s.clock()
		r, err := s.engine.ProcessAll(ctx, now)
		s.logger.InfoContext(ctx, "Scheduler tick finished",
			append(log.NewFields().
				WithOperation(log.OpProcess).
				WithDuration(time.Since(start)).
				WithError(err).ToSlice(),
				"created", r.Created(),
				"failed", len(r.Failures))...)
		return r, err
	})
	report, _ = v.(ProcessReport)
	return report, shared, err
}

// Start begins the periodic loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Scheduler started",
		"interval", s.config.Interval,
		"run_on_start", s.config.RunOnStart)

	return nil
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the loop is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the loop exits, whether through Stop or ctx.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, _, err := s.Tick(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Recurring processing failed, retrying next tick",
			log.FieldError, err)
	}
}
