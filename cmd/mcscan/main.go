// main is the entry point of mcscan.
// It expands the target specification, probes every target under the concurrency budget
// and reports accepted servers to the configured sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/config"
	"github.com/woozymasta/mcscan/internal/filter"
	"github.com/woozymasta/mcscan/internal/geoip"
	"github.com/woozymasta/mcscan/internal/logger"
	"github.com/woozymasta/mcscan/internal/maintenance"
	"github.com/woozymasta/mcscan/internal/output"
	"github.com/woozymasta/mcscan/internal/pipeline"
	"github.com/woozymasta/mcscan/internal/progress"
	"github.com/woozymasta/mcscan/internal/protocol"
	"github.com/woozymasta/mcscan/internal/report"
	"github.com/woozymasta/mcscan/internal/runner"
	"github.com/woozymasta/mcscan/internal/scanner"
	"github.com/woozymasta/mcscan/internal/session"
	"github.com/woozymasta/mcscan/internal/storage"
	"github.com/woozymasta/mcscan/internal/target"
	"github.com/woozymasta/mcscan/internal/vars"
)

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)
	info := vars.Info()
	log.Debug().
		Str("version", info.Version).
		Str("commit", info.Commit).
		Time("built", info.Time).
		Msg("Starting mcscan")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("Scan failed")
	}
	_ = logCloser.Close()

	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var store *storage.Repository
	if cfg.Storage.Path != "" {
		repo, err := storage.New(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer func() {
			if err := repo.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing database")
			}
		}()
		store = repo
	}

	sc := scanner.New(scanner.Config{
		Concurrency: cfg.Scan.Concurrency,
		Timeout:     cfg.Scan.Timeout,
		Grace:       cfg.Scan.Grace,
		Rate:        cfg.Scan.Rate,
	}, nil, protocol.New(cfg.Scan.ProtocolVersion, cfg.Scan.Timeout))

	if cfg.Storage.Recheck {
		rep, err := maintenance.Recheck(ctx, store, sc)
		log.Info().
			Int("checked", rep.Checked).
			Int("updated", rep.Updated).
			Int("deleted", rep.Deleted).
			Int("failed", rep.Failed).
			Int("skipped", rep.Skipped).
			Msg("Recheck finished")
		return err
	}

	// Specification errors abort before any network activity
	src, err := target.New(cfg.Target.Hosts, cfg.Target.Ports)
	if err != nil {
		return err
	}

	flt, err := filter.New(filter.Config{
		VersionGlob: cfg.Filter.Version,
		Constraint:  cfg.Filter.Constraint,
		MinPlayers:  cfg.Filter.MinPlayers,
		MaxPlayers:  cfg.Filter.MaxPlayers,
	})
	if err != nil {
		return err
	}

	geo := openGeoIP(ctx, cfg.GeoIP)
	if geo != nil {
		defer func() {
			if err := geo.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing GeoIP provider")
			}
		}()
	}

	opts := report.Options{
		Description:    cfg.Output.Description,
		CSVDescription: cfg.Output.CSVDescription,
		Geo:            geo != nil,
	}

	sinks := openSinks(cfg, opts, store)
	if len(sinks) == 0 {
		return output.ErrNoSinks
	}
	dispatcher := output.NewDispatcher(sinks...)
	dispatcher.SetTimeout(cfg.Output.WriteTimeout)

	pcfg := pipeline.Config{
		Filter: flt,
		Output: dispatcher,
		Report: opts,
	}
	if geo != nil {
		pcfg.Geo = geo
	}
	spawner, err := setupSession(cfg.Session, &pcfg)
	if err != nil {
		_ = dispatcher.Close()
		return err
	}

	var bar *progress.Bar
	if cfg.Output.Progress && progress.IsTerminal(os.Stderr) {
		bar = progress.Start(int64(src.Count()), os.Stderr)
	}

	log.Info().
		Uint64("hosts", src.Hosts()).
		Int("ports", len(src.Ports())).
		Uint64("targets", src.Count()).
		Int("concurrency", sc.Concurrency()).
		Msg("Scan started")

	sum, runErr := runner.Run(ctx, sc, src, pipeline.New(pcfg), func(scanner.Result) { bar.Increment() })
	bar.Finish()

	if err := dispatcher.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing outputs")
	}

	log.Info().
		Int("scanned", sum.Scanned).
		Int("probed", sum.Probed).
		Int("accepted", sum.Accepted).
		Int("peak_inflight", sc.Peak()).
		Dur("elapsed", sum.Elapsed).
		Msg(sum.String())

	waitSessions(spawner, cfg.Session.Wait)

	return runErr
}

// waitSessions gives running sessions up to timeout to exit.
func waitSessions(spawner *session.CommandSpawner, timeout time.Duration) {
	if spawner == nil || timeout <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := spawner.Wait(ctx); err != nil {
		log.Warn().Err(err).Dur("wait", timeout).Msg("Sessions still running, leaving them")
	}
}

func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if !cfg.Enable {
		return nil
	}

	if err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Warn().Err(err).Msg("Failed to download GeoIP database")
	}

	provider, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open GeoIP database, geo annotation disabled")
		return nil
	}

	return provider
}

// openSinks opens every requested output. A sink that fails to open is skipped;
// the caller aborts when none could be opened.
func openSinks(cfg *config.Config, opts report.Options, store *storage.Repository) []output.Sink {
	var sinks []output.Sink

	if !cfg.Output.Quiet {
		sinks = append(sinks, output.NewConsole(os.Stdout))
	}

	if cfg.Output.File != "" {
		sink, err := openFileSink(cfg.Output, opts)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Output.File).Msg("Failed to open output file")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if store != nil {
		sinks = append(sinks, output.NewDB(store))
	}

	return sinks
}

func openFileSink(cfg config.Output, opts report.Options) (output.Sink, error) {
	if cfg.Format == config.FormatCSV {
		return output.OpenCSV(cfg.File, report.Header(opts), cfg.SkipKnown)
	}

	file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	switch cfg.Format {
	case config.FormatJSON:
		return output.NewJSON("json:"+cfg.File, file, file), nil
	case config.FormatDisplay:
		return output.NewLineSink("display:"+cfg.File, file), nil
	default:
		_ = file.Close()
		return nil, errors.New("unknown output format " + cfg.Format)
	}
}

func setupSession(cfg config.Session, pcfg *pipeline.Config) (*session.CommandSpawner, error) {
	if cfg.Command == "" {
		return nil, nil
	}

	sources := []session.TokenSource{session.StaticToken(cfg.Token)}
	if cfg.TokenFile != "" {
		sources = append(sources, session.FileToken(cfg.TokenFile))
	}

	token, err := session.ResolveToken(sources...)
	if err != nil {
		return nil, err
	}
	if token == "" {
		log.Info().Msg("No session token, session trigger disabled")
		return nil, nil
	}

	spawner, err := session.NewCommand(cfg.Command)
	if err != nil {
		return nil, err
	}

	pcfg.Spawner = spawner
	pcfg.Token = token

	return spawner, nil
}
