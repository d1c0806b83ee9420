// Package pipeline turns status records into report lines: filter, geo annotation,
// formatting, dispatch to sinks and the optional session trigger, in that order.
package pipeline

import (
	"context"
	"net/netip"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/filter"
	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/report"
	"github.com/woozymasta/mcscan/internal/session"
)

// GeoLookup resolves a server location; *geoip.Provider satisfies it.
type GeoLookup interface {
	Lookup(addr netip.Addr) (models.Geo, error)
}

// Dispatcher delivers report lines; *output.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(line report.Line) (bool, error)
}

// Verdict is what Process did with a status record.
type Verdict int

const (
	// Rejected by the filter
	Rejected Verdict = iota

	// Emitted to the sinks
	Emitted

	// Duplicate of a target already emitted, nothing written
	Duplicate
)

func (v Verdict) String() string {
	switch v {
	case Emitted:
		return "emitted"
	case Duplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// Config wires the pipeline collaborators. Geo and Spawner are optional.
type Config struct {
	Filter  *filter.Filter
	Geo     GeoLookup
	Output  Dispatcher
	Spawner session.Spawner
	Token   string
	Report  report.Options
}

// Pipeline is safe for concurrent use when its collaborators are.
type Pipeline struct {
	cfg Config
}

// New returns a Pipeline. A nil filter accepts every record.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Process runs st through the pipeline and reports what became of it.
// A returned error means output can no longer be delivered and the run must abort.
func (p *Pipeline) Process(ctx context.Context, st models.Status) (Verdict, error) {
	logCtx := log.With().
		Str("ip", st.Target.Addr.String()).
		Uint16("port", st.Target.Port).
		Logger()

	if p.cfg.Filter != nil {
		if ok, reason := p.cfg.Filter.Match(st); !ok {
			logCtx.Trace().
				Str("reason", reason).
				Str("version", st.VersionName).
				Int("online", st.OnlinePlayers).
				Int("max", st.MaxPlayers).
				Msg("Status rejected by filter")
			return Rejected, nil
		}
	}

	var geo *models.Geo
	if p.cfg.Geo != nil {
		g, err := p.cfg.Geo.Lookup(st.Target.Addr)
		if err != nil {
			logCtx.Warn().Err(err).Msg("GeoIP lookup failed")
		} else {
			geo = &g
		}
	}

	line := report.Build(st, geo, p.cfg.Report)

	emitted, err := p.cfg.Output.Dispatch(line)
	if err != nil {
		return Rejected, err
	}
	if !emitted {
		logCtx.Debug().Msg("Target already reported, skipping")
		return Duplicate, nil
	}

	p.trigger(ctx, st)

	return Emitted, nil
}

func (p *Pipeline) trigger(ctx context.Context, st models.Status) {
	if p.cfg.Spawner == nil || p.cfg.Token == "" {
		return
	}

	req := session.Request{
		Host:            st.Target.Addr.String(),
		Port:            st.Target.Port,
		Token:           p.cfg.Token,
		ProtocolVersion: st.ProtocolVersion,
	}
	if err := p.cfg.Spawner.Spawn(ctx, req); err != nil {
		log.Warn().Err(err).Str("ip", req.Host).Uint16("port", req.Port).Msg("Session trigger failed")
	}
}
