package scanner

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/target"
)

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
}

// fakeDialer simulates connects without touching the network.
type fakeDialer struct {
	fail  func(addr string) error
	delay time.Duration

	mu     sync.Mutex
	calls  map[string]int
	closed atomic.Int64
}

// trackedConn counts closes of dialed connections.
type trackedConn struct {
	net.Conn
	d    *fakeDialer
	once sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { c.d.closed.Add(1) })
	return c.Conn.Close()
}

func (d *fakeDialer) DialContext(ctx context.Context, _, addr string) (net.Conn, error) {
	d.mu.Lock()
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[addr]++
	d.mu.Unlock()

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if d.fail != nil {
		if err := d.fail(addr); err != nil {
			return nil, err
		}
	}

	client, server := net.Pipe()
	go func() {
		_, _ = io.Copy(io.Discard, server)
		_ = server.Close()
	}()

	return &trackedConn{Conn: client, d: d}, nil
}

// countingProber tracks how many probes run at once.
type countingProber struct {
	delay    time.Duration
	inflight atomic.Int64
	peak     atomic.Int64
}

func (p *countingProber) Probe(ctx context.Context, _ net.Conn, t models.Target) (models.Status, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
	}

	return models.Status{Target: t, VersionName: "1.20.4", MaxPlayers: 20}, nil
}

// drain runs a scan of src and collects every result and the run error.
func drain(ctx context.Context, t *testing.T, s *Scanner, src Source) ([]Result, error) {
	t.Helper()

	results, errs := s.Scan(ctx, src)

	var out []Result
	timeout := time.After(10 * time.Second)
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return out, <-errs
			}
			out = append(out, r)
		case <-timeout:
			t.Fatalf("scan did not finish")
		}
	}
}

func TestScan_ConcurrencyBound(t *testing.T) {
	for _, budget := range []int{1, 3, 8} {
		src, err := target.New("10.0.0.0/27", "25565,25566")
		if err != nil {
			t.Fatalf("enumerator: %v", err)
		}

		prober := &countingProber{delay: 5 * time.Millisecond}
		s := New(Config{Concurrency: budget, Timeout: time.Second}, &fakeDialer{delay: 2 * time.Millisecond}, prober)

		results, err := drain(context.Background(), t, s, src)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(results) != 64 {
			t.Fatalf("budget %d: got %d results want 64", budget, len(results))
		}
		if s.Peak() > budget || s.Peak() < 1 {
			t.Fatalf("budget %d: peak in-flight %d", budget, s.Peak())
		}
		if int(prober.peak.Load()) > budget {
			t.Fatalf("budget %d: peak probing %d", budget, prober.peak.Load())
		}
		if budget > 1 && s.Peak() < 2 {
			t.Fatalf("budget %d: targets never overlapped", budget)
		}
		if s.InFlight() != 0 {
			t.Fatalf("in-flight %d after completion", s.InFlight())
		}
	}
}

func TestScan_ExactlyOnce(t *testing.T) {
	src, err := target.New("10.1.0.0/26", "25565-25567")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	dialer := &fakeDialer{fail: func(addr string) error {
		if addr[len(addr)-1] == '6' {
			return refused()
		}
		return nil
	}}
	s := New(Config{Concurrency: 16, Timeout: time.Second}, dialer, &countingProber{})

	results, err := drain(context.Background(), t, s, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[models.Target]int)
	for _, r := range results {
		seen[r.Target]++
	}
	if len(seen) != int(src.Count()) || len(results) != int(src.Count()) {
		t.Fatalf("got %d results for %d distinct targets, want %d", len(results), len(seen), src.Count())
	}
	for tgt, n := range seen {
		if n != 1 {
			t.Fatalf("target %s emitted %d times", tgt, n)
		}
	}
	for addr, n := range dialer.calls {
		if n != 1 {
			t.Fatalf("target %s dialed %d times", addr, n)
		}
	}
}

func TestScan_Classification(t *testing.T) {
	targets := []models.Target{
		{Addr: netip.MustParseAddr("10.0.0.1"), Port: 1},
		{Addr: netip.MustParseAddr("10.0.0.2"), Port: 1},
		{Addr: netip.MustParseAddr("10.0.0.3"), Port: 1},
		{Addr: netip.MustParseAddr("10.0.0.4"), Port: 1},
	}

	dialer := &fakeDialer{fail: func(addr string) error {
		switch addr {
		case "10.0.0.2:1":
			return refused()
		case "10.0.0.3:1":
			return &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.EHOSTUNREACH}}
		case "10.0.0.4:1":
			return context.DeadlineExceeded
		}
		return nil
	}}

	s := New(Config{Concurrency: 2, Timeout: time.Second}, dialer, &countingProber{})
	results, err := drain(context.Background(), t, s, NewSliceSource(targets))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]State{
		"10.0.0.1:1": Open,
		"10.0.0.2:1": Closed,
		"10.0.0.3:1": ConnectError,
		"10.0.0.4:1": TimedOut,
	}
	for _, r := range results {
		if r.State != want[r.Target.String()] {
			t.Fatalf("%s: got %s want %s", r.Target, r.State, want[r.Target.String()])
		}
		if r.State == Open && r.Status == nil {
			t.Fatalf("%s: open target without status", r.Target)
		}
		if r.State != Open && r.Status != nil {
			t.Fatalf("%s: status on %s target", r.Target, r.State)
		}
	}
}

func TestScan_ConnectTimeout(t *testing.T) {
	targets := []models.Target{{Addr: netip.MustParseAddr("10.0.0.1"), Port: 1}}
	dialer := &fakeDialer{delay: time.Hour}

	start := time.Now()
	s := New(Config{Concurrency: 1, Timeout: 100 * time.Millisecond}, dialer, nil)
	results, err := drain(context.Background(), t, s, NewSliceSource(targets))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 1 || results[0].State != TimedOut {
		t.Fatalf("got %+v", results)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestScan_SystemicFailureAborts(t *testing.T) {
	src, err := target.New("10.2.0.0/16", "25565")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	dialer := &fakeDialer{fail: func(string) error {
		return &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "socket", Err: syscall.EMFILE}}
	}}

	s := New(Config{Concurrency: 4, Timeout: time.Second}, dialer, nil)
	results, err := drain(context.Background(), t, s, src)
	if !errors.Is(err, syscall.EMFILE) {
		t.Fatalf("expected EMFILE run error, got %v", err)
	}
	if len(results) == 0 || len(results) >= int(src.Count()) {
		t.Fatalf("got %d results, expected an early abort", len(results))
	}
}

func TestScan_CancelStopsWithinGrace(t *testing.T) {
	src, err := target.New("10.3.0.0/16", "25565")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	s := New(Config{Concurrency: 8, Timeout: time.Hour, Grace: 100 * time.Millisecond}, &fakeDialer{delay: time.Hour}, nil)

	start := time.Now()
	results, err := drain(ctx, t, s, src)
	if err != nil {
		t.Fatalf("cancellation reported as run error: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("scan ran %v after cancel", time.Since(start))
	}
	if len(results) > 8 {
		t.Fatalf("got %d results, expected only in-flight targets", len(results))
	}
}

func TestScan_Loopback(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	openPort := uint16(l.Addr().(*net.TCPAddr).Port)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	defer func() { _ = l.Close() }()

	closedL, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	closedPort := uint16(closedL.Addr().(*net.TCPAddr).Port)
	_ = closedL.Close()

	loopback := netip.MustParseAddr("127.0.0.1")
	targets := []models.Target{{Addr: loopback, Port: openPort}, {Addr: loopback, Port: closedPort}}

	s := New(Config{Concurrency: 2, Timeout: time.Second}, nil, nil)
	results, err := drain(context.Background(), t, s, NewSliceSource(targets))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range results {
		switch r.Target.Port {
		case openPort:
			if r.State != Open {
				t.Fatalf("open port classified %s (%v)", r.State, r.Err)
			}
		case closedPort:
			if r.State != Closed && r.State != ConnectError {
				t.Fatalf("closed port classified %s (%v)", r.State, r.Err)
			}
		}
	}
}

type panicProber struct{}

func (panicProber) Probe(context.Context, net.Conn, models.Target) (models.Status, error) {
	panic("decoder bug")
}

func TestScan_ProberPanicStillEmits(t *testing.T) {
	src, err := target.New("10.0.0.0/30", "25565")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	dialer := &fakeDialer{}
	s := New(Config{Concurrency: 2, Timeout: time.Second}, dialer, panicProber{})

	results, err := drain(context.Background(), t, s, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results want 4", len(results))
	}
	for _, r := range results {
		if r.State != Open || r.Status != nil || !errors.Is(r.Err, ErrProbePanic) {
			t.Fatalf("%s: got %s status=%v err=%v", r.Target, r.State, r.Status, r.Err)
		}
	}
	if n := dialer.closed.Load(); n != 4 {
		t.Fatalf("closed %d of 4 connections", n)
	}
	if s.InFlight() != 0 {
		t.Fatalf("in-flight %d after completion", s.InFlight())
	}
}

func TestNew_ClampsConcurrency(t *testing.T) {
	if got := New(Config{Concurrency: 5000}, nil, nil).Concurrency(); got != MaxConcurrency {
		t.Fatalf("got %d want %d", got, MaxConcurrency)
	}
	if got := New(Config{Concurrency: 0}, nil, nil).Concurrency(); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{Open: "open", Closed: "closed", TimedOut: "timeout", ConnectError: "error"}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("got %q want %q", s.String(), want)
		}
	}
}
