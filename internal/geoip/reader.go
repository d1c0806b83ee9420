package geoip

import (
	"errors"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/woozymasta/mcscan/internal/models"
)

// ErrNotFound is returned when the database has no usable record for an address.
var ErrNotFound = errors.New("geoip record not found")

// Provider wraps the GeoIP2 database reader. It is safe for concurrent use.
type Provider struct {
	db   *geoip2.Reader
	city bool
}

// Open initializes the GeoIP database reader from path.
// City databases resolve coordinates; Country databases only the country code.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{
		db:   db,
		city: strings.Contains(db.Metadata().DatabaseType, "City"),
	}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Lookup resolves the country code and coordinates of addr.
func (p *Provider) Lookup(addr netip.Addr) (models.Geo, error) {
	if !addr.IsValid() {
		return models.Geo{}, ErrNotFound
	}
	ip := net.IP(addr.AsSlice())

	if p.city {
		record, err := p.db.City(ip)
		if err != nil {
			return models.Geo{}, err
		}
		if record.Country.IsoCode == "" {
			return models.Geo{}, ErrNotFound
		}

		return models.Geo{
			CountryCode: record.Country.IsoCode,
			Latitude:    record.Location.Latitude,
			Longitude:   record.Location.Longitude,
		}, nil
	}

	record, err := p.db.Country(ip)
	if err != nil {
		return models.Geo{}, err
	}
	if record.Country.IsoCode == "" {
		return models.Geo{}, ErrNotFound
	}

	return models.Geo{CountryCode: record.Country.IsoCode}, nil
}
