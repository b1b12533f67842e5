// Package sse implements the per-request event stream: a single-writer ordered
// sink with a multi-party completion registry.
//
// Producers across the pipeline (the orchestrator, per-language TTS workers,
// error handlers) push events concurrently; the sink serialises them onto one
// bounded queue that the HTTP handler drains in order. The stream closes only
// when every registered component has reported completion, or when a fatal
// error aborts it.
package sse

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegisterAfterComplete is returned by [Sink.Register] once any component
// has already been marked complete. Registration must happen up front so the
// close condition cannot race with late joiners.
var ErrRegisterAfterComplete = errors.New("sse: register after a component completed")

// DefaultQueueSize bounds the per-stream event queue. Producers block (never
// drop) when the consumer falls this far behind.
const DefaultQueueSize = 64

// state is the sink lifecycle. Transitions are one-way:
// stateOpen -> stateClosing -> stateClosed.
type state int

const (
	stateOpen state = iota
	stateClosing
	stateClosed
)

// Sink is the ordered event stream for one request.
//
// All methods are safe for concurrent use. Events are delivered on [Sink.Events]
// in exactly the order their Emit calls were accepted.
type Sink struct {
	mu       sync.Mutex
	st       state
	registry map[string]bool
	anyDone  bool
	queue    chan Event
}

// NewSink creates an open sink with a queue of the given size; size <= 0 uses
// [DefaultQueueSize].
func NewSink(queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Sink{
		registry: make(map[string]bool),
		queue:    make(chan Event, queueSize),
	}
}

// Events returns the ordered stream. The channel is closed when the sink
// reaches its closed state; the consumer must drain it fully so that blocked
// producers are always released.
func (s *Sink) Events() <-chan Event {
	return s.queue
}

// Register adds a named component to the completion registry. The stream will
// not close normally until every registered component is marked complete.
func (s *Sink) Register(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != stateOpen {
		return fmt.Errorf("sse: register %q on closed stream", name)
	}
	if s.anyDone {
		return fmt.Errorf("%w: %q", ErrRegisterAfterComplete, name)
	}
	s.registry[name] = false
	return nil
}

// Emit appends ev to the stream. Blocks when the queue is full. After the
// sink has left the open state the call is a no-op.
func (s *Sink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != stateOpen {
		return
	}
	s.queue <- ev
}

// MarkComplete records that the named component has finished. Idempotent;
// marking an unregistered name is a no-op. When the registry is non-empty and
// every entry is done, the sink emits one complete event and closes.
func (s *Sink) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != stateOpen {
		return
	}
	done, ok := s.registry[name]
	if !ok || done {
		return
	}
	s.registry[name] = true
	s.anyDone = true
	if s.allDone() {
		s.closeLocked(true)
	}
}

// MarkAllComplete marks every registered component complete. Kept for callers
// that own the whole stream (single-producer error paths).
func (s *Sink) MarkAllComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != stateOpen {
		return
	}
	for name := range s.registry {
		s.registry[name] = true
	}
	s.anyDone = true
	if len(s.registry) == 0 {
		// Nothing was ever registered; still terminate the stream cleanly.
		s.closeLocked(true)
		return
	}
	if s.allDone() {
		s.closeLocked(true)
	}
}

// Fatal emits an error event and closes the stream without a complete event.
// Used when the pipeline cannot make progress at all.
func (s *Sink) Fatal(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != stateOpen {
		return
	}
	s.queue <- Error(message)
	s.closeLocked(false)
}

// Closed reports whether the stream has terminated.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateClosed
}

// allDone reports whether the registry is non-empty and fully complete.
// Callers must hold mu.
func (s *Sink) allDone() bool {
	if len(s.registry) == 0 {
		return false
	}
	for _, done := range s.registry {
		if !done {
			return false
		}
	}
	return true
}

// closeLocked drains the sink into its terminal state. With complete=true a
// single complete event is appended first. Callers must hold mu.
//
// Every queue send in this package happens with mu held and after a state
// check, so closing the channel here cannot race with a send.
func (s *Sink) closeLocked(withComplete bool) {
	s.st = stateClosing
	if withComplete {
		s.queue <- complete("Stream completed")
	}
	close(s.queue)
	s.st = stateClosed
}
