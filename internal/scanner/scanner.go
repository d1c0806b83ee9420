// Package scanner schedules TCP connect attempts under a fixed concurrency budget and hands
// open sockets to a status prober.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/models"
	"golang.org/x/time/rate"
)

// MaxConcurrency is the hard cap of the concurrency budget.
const MaxConcurrency = 1024

// Defaults applied to zero config values.
const (
	DefaultTimeout = 15 * time.Second
	DefaultGrace   = 5 * time.Second
)

// Source yields targets one at a time. It is only called from the dispatching goroutine.
type Source interface {
	Next() (models.Target, bool)
}

// Dialer opens TCP connections; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober runs the status exchange on an open socket. It must not close conn.
type Prober interface {
	Probe(ctx context.Context, conn net.Conn, t models.Target) (models.Status, error)
}

// Config holds scheduler settings.
type Config struct {
	// Per-target connect timeout
	Timeout time.Duration

	// How long in-flight targets may run after cancellation before being cut off
	Grace time.Duration

	// Connect attempts per second, 0 means unlimited
	Rate float64

	// Concurrency budget, clamped to 1..MaxConcurrency
	Concurrency int
}

// Scanner is a bounded-concurrency connect-and-probe engine.
type Scanner struct {
	dialer  Dialer
	prober  Prober
	limiter *rate.Limiter
	cfg     Config

	inflight atomic.Int64
	peak     atomic.Int64
}

// New creates a Scanner. A nil dialer uses net.Dialer; a nil prober only classifies connects.
func New(cfg Config, dialer Dialer, prober Prober) *Scanner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Concurrency > MaxConcurrency {
		log.Warn().
			Int("requested", cfg.Concurrency).
			Int("max", MaxConcurrency).
			Msg("Concurrency above hard cap, clamping")
		cfg.Concurrency = MaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	s := &Scanner{cfg: cfg, dialer: dialer, prober: prober}
	if cfg.Rate > 0 {
		burst := int(cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}

	return s
}

// Concurrency returns the effective budget.
func (s *Scanner) Concurrency() int {
	return s.cfg.Concurrency
}

// InFlight returns the number of targets currently connecting or probing.
func (s *Scanner) InFlight() int {
	return int(s.inflight.Load())
}

// Peak returns the highest in-flight count observed since the Scanner was created.
func (s *Scanner) Peak() int {
	return int(s.peak.Load())
}

// Scan pulls targets from src as budget slots free up and emits exactly one Result per target.
// The results channel is closed once every scheduled target has completed; the error channel
// then yields at most one run-level failure and is closed. Cancelling ctx stops pulling new
// targets; in-flight targets get the configured grace period before their sockets are cut.
func (s *Scanner) Scan(ctx context.Context, src Source) (<-chan Result, <-chan error) {
	results := make(chan Result, s.cfg.Concurrency)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(results)

		if err := s.run(ctx, src, results); err != nil {
			errs <- err
		}
	}()

	return results, errs
}

func (s *Scanner) run(ctx context.Context, src Source, results chan<- Result) error {
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	// Work outlives the run context by at most the grace period.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	stopGrace := context.AfterFunc(runCtx, func() {
		timer := time.NewTimer(s.cfg.Grace)
		defer timer.Stop()

		select {
		case <-timer.C:
			cancelWork()
		case <-workCtx.Done():
		}
	})
	defer stopGrace()

	var wg sync.WaitGroup
	slots := make(chan struct{}, s.cfg.Concurrency)
	release := func() {
		<-slots
		wg.Done()
	}

	pool, err := ants.NewPoolWithFunc(s.cfg.Concurrency, func(arg any) {
		defer release()
		results <- s.process(workCtx, arg.(models.Target), cancelRun)
	}, ants.WithPanicHandler(func(p any) {
		log.Error().Interface("panic", p).Msg("Scan worker panicked")
	}))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

dispatch:
	for {
		// A target is only pulled once a budget slot is free.
		select {
		case slots <- struct{}{}:
		case <-runCtx.Done():
			break dispatch
		}
		wg.Add(1)

		t, ok := src.Next()
		if !ok || runCtx.Err() != nil {
			release()
			break
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(runCtx); err != nil {
				release()
				break
			}
		}

		if err := pool.Invoke(t); err != nil {
			release()
			cancelRun(fmt.Errorf("schedule %s: %w", t, err))
			break
		}
	}

	wg.Wait()

	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	return nil
}

// process owns one target's lifecycle: connect, optional status exchange, close.
func (s *Scanner) process(ctx context.Context, t models.Target, fail context.CancelCauseFunc) Result {
	s.enter()
	defer s.inflight.Add(-1)

	start := time.Now()
	res := Result{Target: t}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	conn, err := s.dialer.DialContext(dialCtx, "tcp", t.String())
	cancel()

	if err != nil {
		res.State = classify(err)
		res.Err = err
		res.Elapsed = time.Since(start)

		if systemic(err) {
			fail(fmt.Errorf("connect %s: %w", t, err))
		}

		return res
	}

	defer func() { _ = conn.Close() }()

	res.State = Open
	if s.prober != nil {
		st, err := s.probe(ctx, conn, t)
		if err != nil {
			res.Err = err
		} else {
			res.Status = &st
		}
	}
	res.Elapsed = time.Since(start)

	return res
}

// probe runs the status exchange, turning a prober panic into an ordinary failure.
func (s *Scanner) probe(ctx context.Context, conn net.Conn, t models.Target) (st models.Status, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("ip", t.Addr.String()).
				Uint16("port", t.Port).
				Interface("panic", p).
				Msg("Status prober panicked")
			err = fmt.Errorf("%w: %v", ErrProbePanic, p)
		}
	}()

	return s.prober.Probe(ctx, conn, t)
}

func (s *Scanner) enter() {
	n := s.inflight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}
