// Package sched is the pipeline's cooperative scheduler: a single logical
// thread of control on which every state-machine completion and every
// delayed callback runs, serialized.
//
// The Python original ran one asyncio event loop; here a single goroutine
// drains a job channel. Submit launches the actual blocking work (command
// I/O) on its own goroutine and posts the completion closure back onto
// that channel, so two completions for the same item never interleave -
// exactly the ordering guarantee the pipeline requires.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sched

import "time"

// Scheduler is the single cooperative loop. The zero value is not usable;
// construct with New.
type Scheduler struct {
	jobs chan func()
	quit chan struct{}
}

// New starts the loop goroutine and returns a ready-to-use Scheduler.
func New() *Scheduler {
	s := &Scheduler{
		jobs: make(chan func(), 256),
		quit: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.quit:
			return
		}
	}
}

// Stop ends the loop. No further completions or scheduled callbacks will
// run after Stop returns; in-flight Submit work that hasn't yet posted
// its completion is abandoned. Shutdown is process-level - there is no
// cooperative cancellation - Stop exists for tests, not production use.
func (s *Scheduler) Stop() { close(s.quit) }

// Submit starts work on its own goroutine. When it finishes, done(err) is
// invoked from the scheduler's single loop goroutine - never concurrently
// with any other completion or scheduled callback. done may be nil.
func (s *Scheduler) Submit(work func() error, done func(error)) {
	go func() {
		err := work()
		if done == nil {
			return
		}
		s.post(func() { done(err) })
	}()
}

// Post enqueues fn to run on the loop immediately, serialized with every
// other completion and scheduled callback. Used by callers outside the
// loop - such as the ingest loop admitting a newly-discovered item - that
// need their first touch of shared state to happen on the loop too.
func (s *Scheduler) Post(fn func()) { s.post(fn) }

// ScheduleAfter enqueues a zero-argument fn to run on the loop after
// delay has elapsed. Non-cancellable.
func (s *Scheduler) ScheduleAfter(fn func(), delay time.Duration) {
	time.AfterFunc(delay, func() { s.post(fn) })
}

// RunUntilComplete blocks the caller until work finishes, returning its
// error. Used only by the project supervisor's Start, to run the ingest
// loop.
func (s *Scheduler) RunUntilComplete(work func() error) error {
	done := make(chan error, 1)
	s.Submit(work, func(err error) { done <- err })
	return <-done
}

// post enqueues fn onto the loop, tolerating a closed/stopped scheduler
// (a late completion after Stop is simply dropped).
func (s *Scheduler) post(fn func()) {
	defer func() { recover() }()
	select {
	case s.jobs <- fn:
	case <-s.quit:
	}
}
