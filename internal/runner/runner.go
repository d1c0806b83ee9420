// Package runner drives one scan run: it consumes scheduler outcomes, feeds status
// records to the pipeline and accounts for everything in a completion summary.
package runner

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/pipeline"
	"github.com/woozymasta/mcscan/internal/protocol"
	"github.com/woozymasta/mcscan/internal/scanner"
)

// Scanner produces one outcome per target; *scanner.Scanner satisfies it.
type Scanner interface {
	Scan(ctx context.Context, src scanner.Source) (<-chan scanner.Result, <-chan error)
}

// Processor consumes status records; *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, st models.Status) (pipeline.Verdict, error)
}

// Summary accounts for one run.
type Summary struct {
	// Protocol failures on open sockets by kind
	ProtocolFailures map[string]int

	Elapsed time.Duration

	Scanned  int
	Open     int
	Closed   int
	TimedOut int
	Errored  int
	Probed   int
	Accepted int
	Rejected int

	// Records for targets already reported
	Duplicates int

	// Run stopped by the caller before the target space was exhausted
	Interrupted bool
}

// ProtocolErrors returns the total number of failed status exchanges.
func (s Summary) ProtocolErrors() int {
	var n int
	for _, v := range s.ProtocolFailures {
		n += v
	}

	return n
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d scanned, %d accepted (open %d, closed %d, timeout %d, error %d, probed %d, protocol failures %d",
		s.Scanned, s.Accepted, s.Open, s.Closed, s.TimedOut, s.Errored, s.Probed, s.ProtocolErrors())

	for _, kind := range slices.Sorted(maps.Keys(s.ProtocolFailures)) {
		fmt.Fprintf(&b, ", %s %d", kind, s.ProtocolFailures[kind])
	}
	b.WriteString(")")

	if s.Duplicates > 0 {
		fmt.Fprintf(&b, ", %d duplicates", s.Duplicates)
	}
	if s.Interrupted {
		b.WriteString(", interrupted")
	}

	return b.String()
}

// Run scans src and processes every record. onResult, when set, sees each outcome.
// A processor error stops scheduling; outcomes of in-flight targets are still drained
// and the error is returned with the summary gathered so far.
func Run(ctx context.Context, sc Scanner, src scanner.Source, proc Processor, onResult func(scanner.Result)) (Summary, error) {
	start := time.Now()
	sum := Summary{ProtocolFailures: make(map[string]int)}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, errs := sc.Scan(runCtx, src)

	var fatal error
	for res := range results {
		sum.Scanned++
		account(&sum, res)

		if onResult != nil {
			onResult(res)
		}

		if res.Status == nil || fatal != nil {
			continue
		}

		verdict, err := proc.Process(ctx, *res.Status)
		if err != nil {
			log.Error().Err(err).Msg("Output failed, stopping scan")
			fatal = err
			cancel()
			continue
		}

		switch verdict {
		case pipeline.Emitted:
			sum.Accepted++
		case pipeline.Duplicate:
			sum.Duplicates++
		default:
			sum.Rejected++
		}
	}

	sum.Elapsed = time.Since(start)
	sum.Interrupted = ctx.Err() != nil

	if err := <-errs; err != nil {
		return sum, fmt.Errorf("scan: %w", err)
	}
	if fatal != nil {
		return sum, fatal
	}

	return sum, nil
}

func account(sum *Summary, res scanner.Result) {
	logCtx := log.With().
		Str("ip", res.Target.Addr.String()).
		Uint16("port", res.Target.Port).
		Str("state", res.State.String()).
		Logger()

	switch res.State {
	case scanner.Open:
		sum.Open++
	case scanner.Closed:
		sum.Closed++
	case scanner.TimedOut:
		sum.TimedOut++
	default:
		sum.Errored++
	}

	switch {
	case res.Status != nil:
		sum.Probed++
		logCtx.Debug().Dur("elapsed", res.Elapsed).Msg("Status received")
	case res.State == scanner.Open && res.Err != nil:
		kind := protocol.Kind(res.Err)
		sum.ProtocolFailures[kind]++
		logCtx.Debug().Err(res.Err).Str("kind", kind).Msg("Status exchange failed")
	default:
		logCtx.Debug().Err(res.Err).Msg("Connect failed")
	}
}
