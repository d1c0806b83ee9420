package report

import (
	"net/netip"
	"testing"

	"github.com/woozymasta/mcscan/internal/models"
)

func sample() models.Status {
	return models.Status{
		Target:          models.Target{Addr: netip.MustParseAddr("192.0.2.10"), Port: 25565},
		VersionName:     "Paper 1.20.4",
		Description:     "A Minecraft Server, with commas",
		ProtocolVersion: 765,
		OnlinePlayers:   3,
		MaxPlayers:      20,
	}
}

func TestDisplay(t *testing.T) {
	cases := []struct {
		name string
		want string
		opts Options
	}{
		{"plain", "192.0.2.10:25565\tPaper 1.20.4\t3 of 20", Options{}},
		{"with description", "192.0.2.10:25565\tPaper 1.20.4\t3 of 20\tA Minecraft Server, with commas", Options{Description: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Display(sample(), tc.opts); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestRow(t *testing.T) {
	geo := &models.Geo{CountryCode: "US", Latitude: 37.751, Longitude: -97.822}

	cases := []struct {
		name string
		geo  *models.Geo
		want string
		opts Options
	}{
		{"plain", nil, "192.0.2.10,25565,Paper 1.20.4,3,20", Options{}},
		{"description sanitized", nil, "192.0.2.10,25565,Paper 1.20.4,3,20,A Minecraft Server; with commas", Options{CSVDescription: true}},
		{"geo", geo, "192.0.2.10,25565,Paper 1.20.4,3,20,US 37.7510 -97.8220", Options{Geo: true}},
		{"geo missing", nil, "192.0.2.10,25565,Paper 1.20.4,3,20,", Options{Geo: true}},
		{"all columns", geo, "192.0.2.10,25565,Paper 1.20.4,3,20,A Minecraft Server; with commas,US 37.7510 -97.8220", Options{CSVDescription: true, Geo: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Row(sample(), tc.geo, tc.opts); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	if got := Header(Options{}); got != "host,port,version,online,max" {
		t.Fatalf("got %q", got)
	}
	if got := Header(Options{CSVDescription: true, Geo: true}); got != "host,port,version,online,max,description,geo" {
		t.Fatalf("got %q", got)
	}
}

func TestBuild_Pure(t *testing.T) {
	geo := &models.Geo{CountryCode: "DE", Latitude: 51.2993, Longitude: 9.491}
	opts := Options{Description: true, CSVDescription: true, Geo: true}

	a := Build(sample(), geo, opts)
	b := Build(sample(), geo, opts)
	if a.Display != b.Display || a.CSV != b.CSV {
		t.Fatalf("build is not deterministic: %q/%q vs %q/%q", a.Display, a.CSV, b.Display, b.CSV)
	}
	if a.Status != sample() {
		t.Fatalf("status not carried")
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("a,b\nc\rd"); got != "a;b c d" {
		t.Fatalf("got %q", got)
	}
}
