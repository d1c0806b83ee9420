package runner

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/output"
	"github.com/woozymasta/mcscan/internal/pipeline"
	"github.com/woozymasta/mcscan/internal/protocol"
	"github.com/woozymasta/mcscan/internal/report"
	"github.com/woozymasta/mcscan/internal/scanner"
	"github.com/woozymasta/mcscan/internal/target"
)

type refusingDialer struct{}

func (refusingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}
}

type pipeDialer struct{}

func (pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := server.Read(buf); err != nil {
				_ = server.Close()
				return
			}
		}
	}()
	return client, nil
}

// scriptProber answers by host: .1 succeeds, .2 sends garbage, others time out.
type scriptProber struct{}

func (scriptProber) Probe(_ context.Context, _ net.Conn, t models.Target) (models.Status, error) {
	switch t.Addr.As4()[3] {
	case 1:
		return models.Status{Target: t, VersionName: "1.20.4", ProtocolVersion: 765, OnlinePlayers: 2, MaxPlayers: 20}, nil
	case 2:
		return models.Status{}, protocol.ErrMalformedFrame
	default:
		return models.Status{}, protocol.ErrTimeout
	}
}

type memSink struct {
	err   error
	lines []report.Line
	mu    sync.Mutex
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Write(line report.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.lines = append(m.lines, line)
	return nil
}

func (m *memSink) Close() error { return nil }

func TestRun_AllRefused(t *testing.T) {
	src, err := target.New("10.0.0.0/30", "25565")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	prober := &probeCounter{}
	sc := scanner.New(scanner.Config{Concurrency: 2, Timeout: time.Second}, refusingDialer{}, prober)

	sink := &memSink{}
	p := pipeline.New(pipeline.Config{Output: output.NewDispatcher(sink)})

	sum, err := Run(context.Background(), sc, src, p, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if sum.Scanned != 4 || sum.Closed+sum.Errored != 4 {
		t.Fatalf("got %+v", sum)
	}
	if sum.Probed != 0 || sum.Accepted != 0 || prober.n.Load() != 0 || len(sink.lines) != 0 {
		t.Fatalf("records produced: %+v, lines %d", sum, len(sink.lines))
	}
	if !strings.HasPrefix(sum.String(), "4 scanned, 0 accepted") {
		t.Fatalf("summary %q", sum.String())
	}
}

type probeCounter struct {
	n atomic.Int64
}

func (p *probeCounter) Probe(context.Context, net.Conn, models.Target) (models.Status, error) {
	p.n.Add(1)
	return models.Status{}, nil
}

func TestRun_ProtocolFailuresCounted(t *testing.T) {
	src, err := target.New("10.0.0.1-10.0.0.4", "25565")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	sc := scanner.New(scanner.Config{Concurrency: 4, Timeout: time.Second}, pipeDialer{}, scriptProber{})
	sink := &memSink{}
	p := pipeline.New(pipeline.Config{Output: output.NewDispatcher(sink)})

	var seen int
	sum, err := Run(context.Background(), sc, src, p, func(scanner.Result) { seen++ })
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if sum.Open != 4 || sum.Probed != 1 || sum.Accepted != 1 || seen != 4 {
		t.Fatalf("got %+v, callbacks %d", sum, seen)
	}
	if sum.ProtocolFailures["malformed_frame"] != 1 || sum.ProtocolFailures["timeout"] != 2 || sum.ProtocolErrors() != 3 {
		t.Fatalf("failures %v", sum.ProtocolFailures)
	}
	if len(sink.lines) != 1 || sink.lines[0].Display != "10.0.0.1:25565\t1.20.4\t2 of 20" {
		t.Fatalf("lines %+v", sink.lines)
	}
	if !strings.Contains(sum.String(), "malformed_frame 1, timeout 2") {
		t.Fatalf("summary %q", sum.String())
	}
}

func TestRun_SinkFailureAborts(t *testing.T) {
	src, err := target.New("10.0.0.1", "1-200")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	sc := scanner.New(scanner.Config{Concurrency: 2, Timeout: time.Second}, pipeDialer{}, scriptProber{})
	p := pipeline.New(pipeline.Config{Output: output.NewDispatcher(&memSink{err: errors.New("disk full")})})

	sum, err := Run(context.Background(), sc, src, p, nil)
	if !errors.Is(err, output.ErrNoSinks) {
		t.Fatalf("expected ErrNoSinks, got %v", err)
	}
	if sum.Scanned >= 200 {
		t.Fatalf("scan was not stopped: %+v", sum)
	}
	if sum.Interrupted {
		t.Fatalf("sink failure reported as interrupt")
	}
}

func TestRun_Interrupted(t *testing.T) {
	src, err := target.New("10.0.0.0/16", "25565")
	if err != nil {
		t.Fatalf("enumerator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := scanner.New(scanner.Config{Concurrency: 4, Timeout: time.Second}, refusingDialer{}, nil)
	p := pipeline.New(pipeline.Config{Output: output.NewDispatcher(&memSink{})})

	var n int
	sum, err := Run(ctx, sc, src, p, func(scanner.Result) {
		if n++; n == 100 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Interrupted || sum.Scanned >= 65536 {
		t.Fatalf("got %+v", sum)
	}
	if !strings.HasSuffix(sum.String(), ", interrupted") {
		t.Fatalf("summary %q", sum.String())
	}
}

func TestRun_DuplicatesNotRejected(t *testing.T) {
	tgt := models.Target{Addr: netip.MustParseAddr("10.0.0.1"), Port: 25565}
	src := scanner.NewSliceSource([]models.Target{tgt, tgt})

	sc := scanner.New(scanner.Config{Concurrency: 1, Timeout: time.Second}, pipeDialer{}, scriptProber{})
	sink := &memSink{}
	p := pipeline.New(pipeline.Config{Output: output.NewDispatcher(sink)})

	sum, err := Run(context.Background(), sc, src, p, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Accepted != 1 || sum.Duplicates != 1 || sum.Rejected != 0 || len(sink.lines) != 1 {
		t.Fatalf("got %+v, lines %d", sum, len(sink.lines))
	}
	if !strings.HasSuffix(sum.String(), ", 1 duplicates") {
		t.Fatalf("summary %q", sum.String())
	}
}
