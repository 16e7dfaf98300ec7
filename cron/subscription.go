package cron

import "sync"

type Subscription interface {
	Unsubscribe()
}

// ScheduleStatus reports a schedule handle state.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusIdle      ScheduleStatus = "idle"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCanceled  ScheduleStatus = "canceled"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusStopped   ScheduleStatus = "stopped"
)

func (s ScheduleStatus) terminal() bool {
	switch s {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	}
	return false
}

// Handle controls one scheduled job.
type Handle interface {
	Subscription
	Cancel()
	Status() ScheduleStatus
	// Err is the error of the latest firing. A recurring job that failed
	// once and then delivered again reports nil.
	Err() error
	// Runs counts completed firings, failed ones included.
	Runs() int
	Done() <-chan struct{}
	ID() int64
}

type jobHandle struct {
	scheduler *Scheduler
	id        int64
	entryID   int
	done      chan struct{}

	mu     sync.RWMutex
	status ScheduleStatus
	err    error
	runs   int
	once   sync.Once
}

func (h *jobHandle) Unsubscribe() {
	h.Cancel()
}

func (h *jobHandle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.scheduler != nil {
			h.scheduler.removeHandle(h.id)
		}
		if !h.Status().terminal() {
			h.setTerminal(ScheduleStatusCanceled, nil)
		}
	})
}

func (h *jobHandle) Status() ScheduleStatus {
	if h == nil {
		return ScheduleStatusStopped
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *jobHandle) Err() error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *jobHandle) Runs() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runs
}

func (h *jobHandle) Done() <-chan struct{} {
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

func (h *jobHandle) ID() int64 {
	if h == nil {
		return 0
	}
	return h.id
}

// begin moves the handle to running unless it already finished.
func (h *jobHandle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.terminal() {
		return false
	}
	h.status = ScheduleStatusRunning
	return true
}

// finish records a firing. Terminal states reached meanwhile are kept.
func (h *jobHandle) finish(next ScheduleStatus, err error) {
	h.mu.Lock()
	h.runs++
	if h.status.terminal() {
		h.mu.Unlock()
		return
	}
	h.status = next
	h.err = err
	h.mu.Unlock()
	if next.terminal() {
		h.closeDone()
	}
}

func (h *jobHandle) setTerminal(status ScheduleStatus, err error) {
	h.mu.Lock()
	h.status = status
	h.err = err
	h.mu.Unlock()
	h.closeDone()
}

func (h *jobHandle) closeDone() {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}
