// Package geo resolves client IP addresses to a country and city.
package geo

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
	"github.com/radiusdt/adpulse/internal/models"
)

// ErrUnroutable is returned for addresses that cannot have a location, such
// as loopback and private ranges.
var ErrUnroutable = errors.New("address has no public location")

// Locator looks up the location of an IP address. It returns nil, nil when
// the address is valid but unknown to the database.
type Locator interface {
	Locate(ip string) (*models.Location, error)
}

// cityRecord is the subset of a GeoLite2-City record that is decoded.
type cityRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// MaxMindLocator implements Locator on a MaxMind GeoLite2-City database.
type MaxMindLocator struct {
	reader *maxminddb.Reader
}

// NewMaxMindLocator opens the database at dbPath.
func NewMaxMindLocator(dbPath string) (*MaxMindLocator, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Locate returns the English country and city names of ip.
func (m *MaxMindLocator) Locate(ip string) (*models.Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return nil, ErrUnroutable
	}

	var record cityRecord
	if err := m.reader.Lookup(parsed, &record); err != nil {
		return nil, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}

	country := record.Country.Names["en"]
	if country == "" {
		country = record.Country.ISOCode
	}
	if country == "" {
		return nil, nil
	}
	return &models.Location{Country: country, City: record.City.Names["en"]}, nil
}

// Close closes the database.
func (m *MaxMindLocator) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// Enrich fills the location of e from its IP address when the event carries
// an address but no country. It reports whether the event was changed.
func Enrich(l Locator, e *models.Event) (bool, error) {
	if l == nil || e.Metadata.IPAddress == "" || e.Metadata.Country() != "" {
		return false, nil
	}

	loc, err := l.Locate(e.Metadata.IPAddress)
	if err != nil || loc == nil {
		return false, err
	}

	if e.Metadata.Location != nil && e.Metadata.Location.City != "" {
		loc.City = e.Metadata.Location.City
	}
	e.Metadata.Location = loc
	return true, nil
}
