package reparse

import "errors"

var (
	// ErrClosed is returned by every operation on a closed coordinator
	ErrClosed = errors.New("coordinator is closed")
	// ErrBinding wraps a failure to create the parse engine for a buffer
	ErrBinding = errors.New("parse engine binding failed")
	// ErrEngineFailure wraps an error or panic raised by the parse engine
	ErrEngineFailure = errors.New("parse engine failed")
	// ErrWaitInterrupted is returned when a blocking wait is abandoned because
	// its context is done. The wait cannot be resumed.
	ErrWaitInterrupted = errors.New("wait for reparse interrupted")
	// ErrNoResult is returned by readers before any reparse has succeeded
	ErrNoResult = errors.New("no parse result published yet")
	// ErrEditInProgress is returned when BeforeEdit is called twice without AfterEdit
	ErrEditInProgress = errors.New("edit already in progress")
	// ErrNoEdit is returned when AfterEdit is called without BeforeEdit
	ErrNoEdit = errors.New("no edit in progress")
	// ErrSchedulerClosed is returned when scheduling on a closed scheduler
	ErrSchedulerClosed = errors.New("scheduler is closed")
)
