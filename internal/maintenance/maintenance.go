// Package maintenance re-checks the stored servers and keeps the database current.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/scanner"
)

// Store is the part of the repository the recheck needs; *storage.Repository satisfies it.
type Store interface {
	GetServers() ([]models.Server, error)
	UpsertStatus(st models.Status, geo *models.Geo, seen time.Time) error
	DeleteServer(ip string, port int) error
}

// Scanner probes targets; *scanner.Scanner satisfies it.
type Scanner interface {
	Scan(ctx context.Context, src scanner.Source) (<-chan scanner.Result, <-chan error)
}

// Report accounts for one recheck.
type Report struct {
	Checked int
	Updated int
	Deleted int
	Failed  int

	// Results cut short by cancellation, rows left untouched
	Skipped int
}

// Recheck re-probes every stored server: live servers are refreshed, unreachable ones and
// rows with an unusable address are deleted. Servers not checked before ctx is cancelled,
// including those cut off in flight, are left untouched, as are all unreachable servers
// when the scan aborts.
func Recheck(ctx context.Context, store Store, sc Scanner) (Report, error) {
	var rep Report

	servers, err := store.GetServers()
	if err != nil {
		return rep, fmt.Errorf("fetch servers: %w", err)
	}
	if len(servers) == 0 {
		log.Info().Msg("No servers found for recheck")
		return rep, nil
	}

	targets := make([]models.Target, 0, len(servers))
	for _, s := range servers {
		t, ok := s.Target()
		if !ok {
			logCtx := log.With().Str("ip", s.IP).Int("port", s.Port).Logger()
			logCtx.Debug().Msg("Invalid stored address, deleting server")
			rep.delete(store, s.IP, s.Port)
			continue
		}
		targets = append(targets, t)
	}

	log.Info().Int("count", len(targets)).Msg("Starting recheck of stored servers")

	// Deleted only after the scan finishes without a run-level failure.
	var dead []models.Target

	results, errs := sc.Scan(ctx, scanner.NewSliceSource(targets))
	for res := range results {
		rep.Checked++

		logCtx := log.With().
			Str("ip", res.Target.Addr.String()).
			Uint16("port", res.Target.Port).
			Str("state", res.State.String()).
			Logger()

		if interrupted(ctx, res) {
			rep.Skipped++
			logCtx.Debug().Err(res.Err).Msg("Recheck interrupted, server kept")
			continue
		}

		if res.Status == nil {
			logCtx.Debug().Err(res.Err).Msg("Server unreachable")
			dead = append(dead, res.Target)
			continue
		}

		if err := store.UpsertStatus(*res.Status, nil, time.Now()); err != nil {
			rep.Failed++
			logCtx.Error().Err(err).Msg("Failed to update server")
			continue
		}
		rep.Updated++
		logCtx.Trace().Msg("Server updated")
	}

	if err := <-errs; err != nil {
		rep.Skipped += len(dead)
		return rep, fmt.Errorf("recheck scan: %w", err)
	}

	for _, t := range dead {
		rep.delete(store, t.Addr.String(), int(t.Port))
	}

	return rep, nil
}

// interrupted reports whether res was produced after cancellation and so carries
// no verdict about the server.
func interrupted(ctx context.Context, res scanner.Result) bool {
	return ctx.Err() != nil || errors.Is(res.Err, context.Canceled)
}

func (r *Report) delete(store Store, ip string, port int) {
	if err := store.DeleteServer(ip, port); err != nil {
		r.Failed++
		log.Error().Err(err).Str("ip", ip).Int("port", port).Msg("Failed to delete server")
		return
	}
	r.Deleted++
}
