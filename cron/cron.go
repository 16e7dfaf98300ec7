// Package cron delivers statechart events on a schedule. Jobs fire from
// robfig/cron expressions or one-shot timers and run through a
// runner.Handler, so a target that does not accept an event can be
// retried within the same firing.
package cron

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/runner"
	rcron "github.com/robfig/cron/v3"
)

// Target receives scheduled events. *machine.Machine satisfies it.
type Target interface {
	SendEvent(ctx context.Context, evt statemachine.Event) bool
}

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    statemachine.Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	ctx    context.Context
	cancel context.CancelFunc

	nextHandleID int64
	handles      map[int64]*jobHandle
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		handles:  make(map[int64]*jobHandle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = statemachine.NormalizeLogger(s.logger)
	if s.errorHandler == nil {
		s.errorHandler = func(err error) {
			s.logger.Error("scheduled job failed: %v", err)
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = rcron.New(s.build()...)
	return s
}

// Deliver returns a job that sends evt to target and fails with
// ErrNoTransition when the target does not accept it.
func Deliver(target Target, evt statemachine.Event) Job {
	return func(ctx context.Context) error {
		if target.SendEvent(ctx, evt.Clone()) {
			return nil
		}
		return statemachine.CloneError(
			statemachine.ErrNoTransition,
			fmt.Sprintf("scheduled event %s not accepted", evt.Type),
			nil,
			map[string]any{"event": string(evt.Type)},
		)
	}
}

// ScheduleEvent sends evt to target on every tick of opts.Expression.
func (s *Scheduler) ScheduleEvent(opts JobOptions, target Target, evt statemachine.Event) (Handle, error) {
	if err := checkDelivery(target, evt); err != nil {
		return nil, err
	}
	return s.schedule(opts, "event "+string(evt.Type), Deliver(target, evt))
}

// ScheduleEventAfter sends evt to target once, after delay.
func (s *Scheduler) ScheduleEventAfter(delay time.Duration, opts JobOptions, target Target, evt statemachine.Event) (Handle, error) {
	if err := checkDelivery(target, evt); err != nil {
		return nil, err
	}
	return s.scheduleAt(time.Now().Add(max(delay, 0)), opts, "event "+string(evt.Type), Deliver(target, evt))
}

// ScheduleEventAt sends evt to target once, at at.
func (s *Scheduler) ScheduleEventAt(at time.Time, opts JobOptions, target Target, evt statemachine.Event) (Handle, error) {
	if err := checkDelivery(target, evt); err != nil {
		return nil, err
	}
	return s.scheduleAt(at, opts, "event "+string(evt.Type), Deliver(target, evt))
}

// ScheduleCron runs job on every tick of opts.Expression.
func (s *Scheduler) ScheduleCron(opts JobOptions, job Job) (Handle, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	return s.schedule(opts, "job", job)
}

// ScheduleAfter runs job once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, opts JobOptions, job Job) (Handle, error) {
	return s.ScheduleAt(time.Now().Add(max(delay, 0)), opts, job)
}

// ScheduleAt runs job once at at. The timer runs whether or not the
// scheduler was started.
func (s *Scheduler) ScheduleAt(at time.Time, opts JobOptions, job Job) (Handle, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	return s.scheduleAt(at, opts, "job", job)
}

func (s *Scheduler) schedule(opts JobOptions, name string, job Job) (Handle, error) {
	if opts.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}

	h := s.newHandle()
	run := s.runnable(opts, name, job)
	entryID, err := s.cron.AddFunc(opts.Expression, func() {
		if !h.begin() {
			return
		}
		if err := run(); err != nil {
			h.finish(ScheduleStatusIdle, err)
			s.errorHandler(err)
			return
		}
		h.finish(ScheduleStatusIdle, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}
	h.entryID = int(entryID)
	s.storeHandle(h)
	return h, nil
}

func (s *Scheduler) scheduleAt(at time.Time, opts JobOptions, name string, job Job) (Handle, error) {
	h := s.newHandle()
	run := s.runnable(opts, name, job)
	s.storeHandle(h)

	go func() {
		timer := time.NewTimer(max(time.Until(at), 0))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-h.Done():
			return
		}

		if !h.begin() {
			return
		}
		defer s.removeStoredHandle(h.id)
		if err := run(); err != nil {
			h.finish(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		h.finish(ScheduleStatusCompleted, nil)
	}()

	return h, nil
}

func (s *Scheduler) runnable(opts JobOptions, name string, job Job) func() error {
	handler := runner.NewHandler(opts.runnerOptions(name, s)...)
	return func() error {
		return handler.Run(s.ctx, func(ctx context.Context) error { return job(ctx) })
	}
}

// Start begins firing cron expressions.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop halts the cron loop, cancels in-flight jobs and marks every live
// handle stopped. It waits for running cron jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.cancel()
	stopped := s.cron.Stop()

	s.mu.Lock()
	handles := make([]*jobHandle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()

	for _, h := range handles {
		if h.entryID > 0 {
			s.cron.Remove(rcron.EntryID(h.entryID))
		}
		if !h.Status().terminal() {
			h.setTerminal(ScheduleStatusStopped, nil)
		}
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handles returns how many jobs are still scheduled.
func (s *Scheduler) Handles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) removeHandle(id int64) {
	h := s.removeStoredHandle(id)
	if h != nil && h.entryID > 0 {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[id]
	delete(s.handles, id)
	return h
}

func (s *Scheduler) storeHandle(h *jobHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.id] = h
}

func (s *Scheduler) newHandle() *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &jobHandle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func checkDelivery(target Target, evt statemachine.Event) error {
	if target == nil {
		return fmt.Errorf("target cannot be nil")
	}
	return evt.Validate()
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	std := log.New(out, "cron: ", log.LstdFlags)
	if level >= LogLevelDebug {
		return rcron.VerbosePrintfLogger(std)
	}
	return rcron.PrintfLogger(std)
}

// build converts scheduler options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0, 4)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	opts = append(opts, rcron.WithChain(
		rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
	))

	switch {
	case s.logLevel == LogLevelSilent:
		opts = append(opts, rcron.WithLogger(rcron.DiscardLogger))
	case s.logWriter != nil:
		opts = append(opts, rcron.WithLogger(makeLogger(s.logWriter, s.logLevel)))
	default:
		opts = append(opts, rcron.WithLogger(&loggerAdapter{logger: s.logger, level: s.logLevel}))
	}

	return opts
}
