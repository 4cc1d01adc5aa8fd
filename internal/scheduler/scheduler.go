// Package scheduler runs the ingestion pipeline on a fixed interval with
// single-flight protection and a last-run snapshot.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrRunInProgress is returned by TriggerNow when a run is already executing.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// State describes what the scheduler is doing right now.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// RunStatus is the snapshot of the most recently completed run.
type RunStatus struct {
	Started        time.Time `json:"started"`
	Finished       time.Time `json:"finished"`
	Success        bool      `json:"success"`
	EventsIngested int       `json:"events_ingested"`
	EventsUpdated  int       `json:"events_updated"`
	Errors         int       `json:"errors"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// RunSummary is what a completed pipeline run reports back.
type RunSummary struct {
	Inserted int
	Updated  int
	Failures int
}

// Runner executes one ingestion pass. The scheduler owns the cadence; the
// runner owns the pipeline.
type Runner interface {
	RunOnce(ctx context.Context) (RunSummary, error)
}

// Recorder persists a finished run's status. Optional.
type Recorder func(ctx context.Context, status RunStatus)

// Scheduler triggers ingestion runs on an interval. Runs never overlap: ticks
// that land while a run is in flight are dropped, and manual triggers fail
// fast with ErrRunInProgress.
type Scheduler struct {
	mu sync.RWMutex

	runner   Runner
	interval time.Duration
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running  bool // loop started
	inFlight bool // a run is executing right now
	lastRun  *RunStatus
}

// Config holds scheduler construction parameters.
type Config struct {
	Runner   Runner
	Interval time.Duration
	// Recorder, when set, is called with each finished run's status
	Recorder Recorder
}

// New creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	return &Scheduler{
		runner:   cfg.Runner,
		interval: cfg.Interval,
		recorder: cfg.Recorder,
	}, nil
}

// Start begins the scheduling loop. The first run happens after one interval,
// not immediately; use TriggerNow for an eager first pass.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	log.Printf("scheduler: started (interval=%v)", s.interval)
	return nil
}

// Stop cancels the timer loop and waits for it to exit. An ingestion run
// already in flight is allowed to finish; Stop only stops future ticks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("scheduler: stopped")
}

// State reports whether a run is executing right now.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inFlight {
		return StateRunning
	}
	return StateIdle
}

// LastRun returns a copy of the most recent completed run's status, or nil
// when no run has finished yet.
func (s *Scheduler) LastRun() *RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	status := *s.lastRun
	return &status
}

// TriggerNow runs the pipeline immediately on the caller's goroutine. It
// fails fast with ErrRunInProgress instead of queueing behind an active run.
func (s *Scheduler) TriggerNow(ctx context.Context) (*RunStatus, error) {
	if !s.tryBegin() {
		return nil, ErrRunInProgress
	}
	status := s.execute(ctx)
	return &status, nil
}

// loop is the timer loop. Ticks that land mid-run are dropped rather than
// queued, so a slow run never causes a burst of catch-up runs.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.tryBegin() {
				log.Printf("scheduler: previous run still in flight, skipping tick")
				continue
			}
			// Stop cancels future ticks, never a run already under way.
			s.execute(context.WithoutCancel(s.ctx))
		}
	}
}

// tryBegin claims the single-flight slot. Returns false if a run holds it.
func (s *Scheduler) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// execute runs the pipeline once and records the outcome. The caller must
// have claimed the slot via tryBegin.
func (s *Scheduler) execute(ctx context.Context) RunStatus {
	status := RunStatus{Started: time.Now().UTC()}

	summary, err := s.runner.RunOnce(ctx)
	status.Finished = time.Now().UTC()
	status.EventsIngested = summary.Inserted
	status.EventsUpdated = summary.Updated
	status.Errors = summary.Failures

	if err != nil {
		status.Success = false
		status.ErrorMessage = err.Error()
		log.Printf("scheduler: run failed: %v", err)
	} else {
		status.Success = true
		log.Printf("scheduler: run finished (ingested=%d updated=%d errors=%d)",
			status.EventsIngested, status.EventsUpdated, status.Errors)
	}

	s.mu.Lock()
	s.lastRun = &status
	s.inFlight = false
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder(ctx, status)
	}
	return status
}
