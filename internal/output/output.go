// Package output delivers report lines to the configured sinks exactly once each.
package output

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/report"
)

var (
	// ErrNoSinks is returned once every configured sink has failed.
	ErrNoSinks = errors.New("no output sinks left")

	// ErrWriteTimeout marks a sink write that missed its deadline.
	ErrWriteTimeout = errors.New("sink write timed out")
)

// Sink receives report lines. Calls are serialized by the Dispatcher.
type Sink interface {
	Name() string
	Write(line report.Line) error
	Close() error
}

// Dispatcher fans report lines out to sinks, detaching those that fail.
type Dispatcher struct {
	seen    map[uint64]struct{}
	stalled map[Sink]struct{}
	sinks   []Sink
	all     []Sink
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
}

// NewDispatcher returns a Dispatcher writing to sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks: append([]Sink(nil), sinks...),
		all:   append([]Sink(nil), sinks...),
		seen:    make(map[uint64]struct{}),
		stalled: make(map[Sink]struct{}),
	}
}

// SetTimeout bounds every sink write to d; zero disables the deadline.
// A sink that misses the deadline is detached and never closed.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timeout = timeout
}

// Len returns the number of sinks still attached.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.sinks)
}

// Dispatch writes line to every attached sink. A line for a target already dispatched is
// ignored and reported as not emitted. A failing sink is detached; when none remain the
// error wraps ErrNoSinks and the caller is expected to abort.
func (d *Dispatcher) Dispatch(line report.Line) (bool, error) {
	key := xxhash.Sum64String(line.Status.Target.String())

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, fmt.Errorf("dispatch %s: %w", line.Status.Target, ErrNoSinks)
	}
	if _, dup := d.seen[key]; dup {
		return false, nil
	}
	d.seen[key] = struct{}{}

	var lastErr error
	active := d.sinks[:0]
	for _, s := range d.sinks {
		if err := d.write(s, line); err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Msg("Output sink failed, detaching")
			lastErr = err
			continue
		}
		active = append(active, s)
	}
	clear(d.sinks[len(active):])
	d.sinks = active

	if len(d.sinks) == 0 {
		if lastErr == nil {
			return false, ErrNoSinks
		}
		return false, fmt.Errorf("%w: %w", ErrNoSinks, lastErr)
	}

	return true, nil
}

// Close flushes and closes every sink, including detached ones.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.sinks = nil

	var errs []error
	for _, s := range d.all {
		if _, ok := d.stalled[s]; ok {
			log.Warn().Str("sink", s.Name()).Msg("Output sink still blocked, not closing")
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) write(s Sink, line report.Line) error {
	if d.timeout <= 0 {
		return s.Write(line)
	}

	done := make(chan error, 1)
	go func() { done <- s.Write(line) }()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		d.stalled[s] = struct{}{}
		return fmt.Errorf("%w after %s", ErrWriteTimeout, d.timeout)
	}
}
