// Package filter decides which status records are reported.
package filter

import (
	"fmt"
	"regexp"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-version"
	"github.com/woozymasta/mcscan/internal/models"
)

// Unbounded disables the upper player bound.
const Unbounded = -1

// Config is the filter configuration loaded once per run.
type Config struct {
	// Shell glob matched against the version name, empty or "*" matches everything
	VersionGlob string

	// Optional version constraint, e.g. ">= 1.19, < 1.21"
	Constraint string

	// Minimum online players
	MinPlayers int

	// Maximum of the server player cap, Unbounded (or any negative value) disables the check
	MaxPlayers int
}

// Reject reasons returned by Filter.Match.
const (
	ReasonVersion    = "version"
	ReasonMinPlayers = "min_players"
	ReasonMaxPlayers = "max_players"
	ReasonConstraint = "constraint"
)

var versionToken = regexp.MustCompile(`\d+(?:\.\d+){0,2}`)

// Filter is a compiled, read-only Config safe for concurrent use.
type Filter struct {
	glob       glob.Glob
	constraint version.Constraints
	cfg        Config
}

// New compiles cfg.
func New(cfg Config) (*Filter, error) {
	if cfg.MinPlayers < 0 {
		return nil, fmt.Errorf("min players must not be negative: %d", cfg.MinPlayers)
	}
	if cfg.MaxPlayers < 0 {
		cfg.MaxPlayers = Unbounded
	}

	f := &Filter{cfg: cfg}

	if cfg.VersionGlob != "" && cfg.VersionGlob != "*" {
		g, err := glob.Compile(cfg.VersionGlob)
		if err != nil {
			return nil, fmt.Errorf("compile version glob %q: %w", cfg.VersionGlob, err)
		}
		f.glob = g
	}

	if cfg.Constraint != "" {
		c, err := version.NewConstraint(cfg.Constraint)
		if err != nil {
			return nil, fmt.Errorf("parse version constraint %q: %w", cfg.Constraint, err)
		}
		f.constraint = c
	}

	return f, nil
}

// Config returns the effective configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// Match applies the checks in order and stops at the first failure.
// It returns the reason of the rejection, empty when st is accepted.
func (f *Filter) Match(st models.Status) (bool, string) {
	if f.glob != nil && !f.glob.Match(st.VersionName) {
		return false, ReasonVersion
	}

	if st.OnlinePlayers < f.cfg.MinPlayers {
		return false, ReasonMinPlayers
	}

	if f.cfg.MaxPlayers != Unbounded && st.MaxPlayers > f.cfg.MaxPlayers {
		return false, ReasonMaxPlayers
	}

	if f.constraint != nil && !f.satisfies(st.VersionName) {
		return false, ReasonConstraint
	}

	return true, ""
}

// satisfies checks the first version-looking token of name, e.g. "1.20.4" in "Paper 1.20.4".
func (f *Filter) satisfies(name string) bool {
	token := versionToken.FindString(name)
	if token == "" {
		return false
	}

	v, err := version.NewVersion(token)
	if err != nil {
		return false
	}

	return f.constraint.Check(v)
}
