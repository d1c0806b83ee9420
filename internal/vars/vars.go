// Package vars carries the identity of the mcscan binary. Version, Commit and BuildTime
// are set at link time, e.g.
//
//	-ldflags "-X github.com/woozymasta/mcscan/internal/vars.Version=v0.3.0"
package vars

import (
	"fmt"
	"io"
	"time"
)

const (
	// Name of the tool
	Name = "mcscan"

	// URL of the project repository
	URL = "https://github.com/woozymasta/mcscan"
)

var (
	// Version is the release tag, "dev" for local builds
	Version = "dev"

	// Commit is the git SHA the binary was built from
	Commit = "unknown"

	// BuildTime is the RFC3339 build timestamp, empty for local builds
	BuildTime string
)

// Build is the parsed build identity.
type Build struct {
	// Zero when BuildTime is unset or malformed
	Time    time.Time
	Version string
	Commit  string
}

// Info returns the build identity with the commit shortened to 7 characters.
func Info() Build {
	b := Build{Version: Version, Commit: Commit}
	if len(b.Commit) > 7 {
		b.Commit = b.Commit[:7]
	}
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		b.Time = t.UTC()
	}

	return b
}

// Print writes the --version output to w.
func Print(w io.Writer) {
	b := Info()

	built := "unknown"
	if !b.Time.IsZero() {
		built = b.Time.Format(time.RFC3339)
	}

	_, _ = fmt.Fprintf(w, "%s %s (%s, built %s)\n%s\n", Name, b.Version, b.Commit, built, URL)
}
