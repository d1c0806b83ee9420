// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/mcscan/internal/logger"
	"github.com/woozymasta/mcscan/internal/vars"
)

// Output formats of the --output-file sink.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatDisplay = "display"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Target  Target        `group:"Target Options" env-namespace:"MCSCAN"`
	Scan    Scan          `group:"Scan Options" namespace:"scan" env-namespace:"MCSCAN_SCAN"`
	Filter  Filter        `group:"Filter Options" namespace:"filter" env-namespace:"MCSCAN_FILTER"`
	Output  Output        `group:"Output Options" namespace:"output" env-namespace:"MCSCAN_OUTPUT"`
	GeoIP   GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"MCSCAN_GEOIP"`
	Session Session       `group:"Session Options" namespace:"session" env-namespace:"MCSCAN_SESSION"`
	Storage Storage       `group:"Storage Options" namespace:"db" env-namespace:"MCSCAN_DB"`
	Logger  logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MCSCAN_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Target holds the host and port specifications.
type Target struct {
	Hosts string `short:"H" long:"hosts" env:"HOSTS" description:"Hosts: IPv4 address, CIDR block or A-B range, comma separated"`
	Ports string `short:"p" long:"ports" env:"PORTS" description:"Ports: single, A-B range or comma separated list" default:"25565"`
}

// Scan holds scheduler and protocol settings.
type Scan struct {
	// betteralign:ignore

	Concurrency     int           `long:"concurrency" env:"CONCURRENCY" description:"Maximum targets connecting or probing at once (capped at 1024)" default:"256"`
	Timeout         time.Duration `long:"timeout" env:"TIMEOUT" description:"Per-target connect and status timeout" default:"15s"`
	Grace           time.Duration `long:"grace" env:"GRACE" description:"Time in-flight targets may finish after interrupt" default:"5s"`
	Rate            float64       `long:"rate" env:"RATE" description:"Connect attempts per second, 0 is unlimited" default:"0"`
	ProtocolVersion int           `long:"protocol-version" env:"PROTOCOL_VERSION" description:"Protocol version declared in the handshake" default:"47"`
}

// Filter holds the record acceptance rules.
type Filter struct {
	Version    string `long:"version" env:"VERSION" description:"Shell glob matched against the version name" default:"*"`
	Constraint string `long:"constraint" env:"CONSTRAINT" description:"Version constraint, e.g. '>= 1.19, < 1.21'"`
	MinPlayers int    `long:"min-players" env:"MIN_PLAYERS" description:"Minimum online players" default:"0"`
	MaxPlayers int    `long:"max-players" env:"MAX_PLAYERS" description:"Maximum server player cap, -1 is unbounded" default:"-1"`
}

// Output holds sink settings.
type Output struct {
	// betteralign:ignore

	File           string `short:"o" long:"file" env:"FILE" description:"Append results to this file"`
	Format         string `long:"format" env:"FORMAT" description:"Format of the output file" default:"csv" choice:"csv" choice:"json" choice:"display"`
	Quiet          bool   `short:"q" long:"quiet" env:"QUIET" description:"Do not print results to stdout"`
	Description    bool   `long:"description" env:"DESCRIPTION" description:"Print server descriptions"`
	CSVDescription bool   `long:"csv-description" env:"CSV_DESCRIPTION" description:"Add the description column to CSV output"`
	SkipKnown      bool   `long:"skip-known" env:"SKIP_KNOWN" description:"Do not append servers already present in the CSV file"`
	Progress       bool   `long:"progress" env:"PROGRESS" description:"Show a progress bar on a terminal"`

	WriteTimeout time.Duration `long:"write-timeout" env:"WRITE_TIMEOUT" description:"Deadline of a single sink write, a sink missing it is detached, 0 disables" default:"10s"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Enable   bool          `long:"enable" env:"ENABLE" description:"Annotate results with country and coordinates"`
	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"mcscan.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-City.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// Session holds the game-session trigger configuration.
type Session struct {
	Command   string        `long:"command" env:"COMMAND" description:"Client command run per accepted server, placeholders {host} {port} {token} {protocol}"`
	Token     string        `long:"token" env:"TOKEN" description:"Credential token passed to the session command"`
	TokenFile string        `long:"token-file" env:"TOKEN_FILE" description:"File holding the credential token"`
	Wait      time.Duration `long:"wait" env:"WAIT" description:"How long to wait for running sessions on exit, 0 leaves them running" default:"30s"`
}

// Storage holds database configuration.
type Storage struct {
	Path    string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database for discovered servers"`
	Recheck bool   `long:"recheck" description:"Re-probe stored servers, update live ones and delete dead ones"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print(os.Stdout)
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	return cfg
}

// ParseArgs parses args and the environment without validating the result.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", rest)
	}

	return &cfg, nil
}

// Validate checks settings that the flag parser cannot.
func (c *Config) Validate() error {
	if !c.Storage.Recheck {
		if c.Target.Hosts == "" {
			return errors.New("required flag `-H, --hosts' or environment variable `MCSCAN_HOSTS` was not specified")
		}
		if c.Target.Ports == "" {
			return errors.New("required flag `-p, --ports' or environment variable `MCSCAN_PORTS` was not specified")
		}
	}
	if c.Storage.Recheck && c.Storage.Path == "" {
		return errors.New("--db-recheck requires --db-path")
	}

	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("--scan-concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("--scan-timeout must be positive, got %s", c.Scan.Timeout)
	}
	if c.Output.WriteTimeout < 0 {
		return fmt.Errorf("--output-write-timeout must not be negative, got %s", c.Output.WriteTimeout)
	}
	if c.Session.Wait < 0 {
		return fmt.Errorf("--session-wait must not be negative, got %s", c.Session.Wait)
	}
	if c.Scan.Grace < 0 {
		return fmt.Errorf("--scan-grace must not be negative, got %s", c.Scan.Grace)
	}
	if c.Scan.Rate < 0 {
		return fmt.Errorf("--scan-rate must not be negative, got %g", c.Scan.Rate)
	}
	if c.Filter.MinPlayers < 0 {
		return fmt.Errorf("--filter-min-players must not be negative, got %d", c.Filter.MinPlayers)
	}

	if c.Output.Quiet && c.Output.File == "" && c.Storage.Path == "" && !c.Storage.Recheck {
		return errors.New("--output-quiet requires --output-file or --db-path, results would be lost")
	}
	if c.Output.SkipKnown && c.Output.Format != FormatCSV {
		return errors.New("--output-skip-known only applies to csv output")
	}

	if c.Session.Token != "" && c.Session.TokenFile != "" {
		return errors.New("--session-token and --session-token-file are mutually exclusive")
	}

	return nil
}
