package reparse

import (
	"sync"
	"time"
)

// Request asks for a reparse of the buffer's content as of execution time.
// It carries no diff: every reparse is a full one.
type Request struct {
	Seq         uint64
	ScheduledAt time.Time
}

// Scheduler is a single-worker delayed execution queue holding at most one
// request that has not started yet. Scheduling replaces that request, so out of
// a burst only the last one ever runs.
type Scheduler struct {
	delay time.Duration
	run   func(Request)

	mu      sync.Mutex
	cond    *sync.Cond
	pending *Request // waiting for its quiet period
	timer   *time.Timer
	ready   *Request // quiet period over, waiting for the worker
	closed  bool
	done    chan struct{}
}

// NewScheduler starts the worker goroutine. run is called on that goroutine,
// one request at a time.
func NewScheduler(delay time.Duration, run func(Request)) *Scheduler {
	s := &Scheduler{
		delay: delay,
		run:   run,
		done:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Schedule drops any request that has not started and arms req to run after
// the quiet period.
func (s *Scheduler) Schedule(req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	s.dropLocked()
	r := &req
	s.pending = r
	s.timer = time.AfterFunc(s.delay, func() { s.fire(r) })
	return nil
}

// Cancel drops the request that has not started, if any, and reports whether
// there was one.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked()
}

// Pending reports whether a request is waiting to start
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil || s.ready != nil
}

// Close drops the pending request and waits for the worker to finish the
// request it is running. It must not be called from inside run.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.dropLocked()
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Scheduler) dropLocked() bool {
	dropped := false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending != nil {
		s.pending = nil
		dropped = true
	}
	if s.ready != nil {
		s.ready = nil
		dropped = true
	}
	return dropped
}

// fire moves r to the worker if it is still the current request. A timer that
// fired concurrently with Schedule or Cancel finds a different pending request
// and does nothing.
func (s *Scheduler) fire(r *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != r {
		return
	}
	s.pending = nil
	s.timer = nil
	s.ready = r
	s.cond.Signal()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.ready == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		req := *s.ready
		s.ready = nil
		s.mu.Unlock()

		s.run(req)
	}
}
