package reparse

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/livedoc/pkg/types"
)

// Listener is notified after every published reparse, on the goroutine that
// performed it. Listeners must not edit the document they observe, and must
// not wait in Latest for a reparse that only starts after they return.
type Listener interface {
	ReparseFinished(result *types.ParseResult)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(result *types.ParseResult)

// ReparseFinished calls f(result)
func (f ListenerFunc) ReparseFinished(result *types.ParseResult) {
	f(result)
}

// FailureListener is implemented by listeners that also want engine failures
type FailureListener interface {
	ReparseFailed(failure *Failure)
}

// Failure describes a reparse whose engine returned an error or panicked
type Failure struct {
	Path     string
	Version  uint64
	Mode     types.ReparseMode
	Err      error
	Duration time.Duration
}

// Registry is an ordered set of listeners
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []registration
}

type registration struct {
	id       uint64
	listener Listener
}

// Subscribe appends l and returns a function removing it again
func (r *Registry) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registration{id: id, listener: l})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

// Len returns the number of subscribed listeners
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes every listener
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Registry) snapshot() []registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registration(nil), r.entries...)
}

// Notify calls every listener in subscription order. A panicking listener does
// not stop the others; its panic is returned as an error.
func (r *Registry) Notify(result *types.ParseResult) error {
	var errs []error
	for _, e := range r.snapshot() {
		if err := call(func() { e.listener.ReparseFinished(result) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) NotifyFailure(failure *Failure) error {
	var errs []error
	for _, e := range r.snapshot() {
		fl, ok := e.listener.(FailureListener)
		if !ok {
			continue
		}
		if err := call(func() { fl.ReparseFailed(failure) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	fn()
	return nil
}
