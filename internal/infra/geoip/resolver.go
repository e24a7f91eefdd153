// Package geoip maps client addresses to ISO country codes for the access log.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

var ErrUnavailable = errors.New("geoip: resolver unavailable")

type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Resolver reads a MaxMind GeoIP2 or GeoLite2 country database.
type Resolver struct {
	reader *geoip2.Reader
}

// Open returns nil without error when path is empty so that lookups stay
// optional.
func Open(path string) (*Resolver, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// CountryCode accepts a bare address or host:port.
func (r *Resolver) CountryCode(addr string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	ip := ParseIP(addr)
	if ip == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", addr)
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return "", nil
	}
	record, err := r.reader.Country(ip)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	return record.Country.IsoCode, nil
}

func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// ParseIP strips an optional port and brackets before parsing.
func ParseIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(strings.Trim(addr, "[]"))
}
