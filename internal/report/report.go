// Package report formats accepted status records into display and CSV lines.
// Every function here is pure: identical inputs always yield identical output.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/woozymasta/mcscan/internal/models"
)

// Options select the optional report columns.
type Options struct {
	// Append the description to the display line
	Description bool

	// Add the description column to CSV rows
	CSVDescription bool

	// Add the geo column to CSV rows
	Geo bool
}

// Line is the write-once report of one accepted status record.
type Line struct {
	Geo     *models.Geo
	Display string
	CSV     string
	Status  models.Status
}

var csvReplacer = strings.NewReplacer(",", ";", "\r", " ", "\n", " ")

// Build formats st. geo may be nil when no annotation is available.
func Build(st models.Status, geo *models.Geo, opts Options) Line {
	return Line{
		Status:  st,
		Geo:     geo,
		Display: Display(st, opts),
		CSV:     Row(st, geo, opts),
	}
}

// Display returns "host:port<TAB>version<TAB>online of max[<TAB>description]".
func Display(st models.Status, opts Options) string {
	var b strings.Builder
	b.WriteString(st.Target.String())
	b.WriteByte('\t')
	b.WriteString(st.VersionName)
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(st.OnlinePlayers))
	b.WriteString(" of ")
	b.WriteString(strconv.Itoa(st.MaxPlayers))

	if opts.Description && st.Description != "" {
		b.WriteByte('\t')
		b.WriteString(st.Description)
	}

	return b.String()
}

// Row returns the CSV row of st without a trailing newline.
// Free-text fields are sanitized, not quoted.
func Row(st models.Status, geo *models.Geo, opts Options) string {
	fields := []string{
		st.Target.Addr.String(),
		strconv.Itoa(int(st.Target.Port)),
		Sanitize(st.VersionName),
		strconv.Itoa(st.OnlinePlayers),
		strconv.Itoa(st.MaxPlayers),
	}

	if opts.CSVDescription {
		fields = append(fields, Sanitize(st.Description))
	}
	if opts.Geo {
		fields = append(fields, GeoField(geo))
	}

	return strings.Join(fields, ",")
}

// Header returns the canonical CSV header for opts.
func Header(opts Options) string {
	columns := []string{"host", "port", "version", "online", "max"}
	if opts.CSVDescription {
		columns = append(columns, "description")
	}
	if opts.Geo {
		columns = append(columns, "geo")
	}

	return strings.Join(columns, ",")
}

// GeoField renders geo as "CC lat lon", empty for a missing annotation.
func GeoField(geo *models.Geo) string {
	if geo == nil {
		return ""
	}

	return Sanitize(fmt.Sprintf("%s %.4f %.4f", geo.CountryCode, geo.Latitude, geo.Longitude))
}

// Sanitize makes s safe for a single-line unquoted CSV field.
func Sanitize(s string) string {
	return csvReplacer.Replace(s)
}
