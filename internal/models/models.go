// Package models defines the data structures shared by the scan, probe, report and storage layers.
package models

import (
	"net/netip"
	"time"
)

// Target is one (host, port) pair probed once per run.
type Target struct {
	Addr netip.Addr
	Port uint16
}

// String returns the dialable "host:port" form of the target.
func (t Target) String() string {
	return netip.AddrPortFrom(t.Addr, t.Port).String()
}

// Status is the parsed status response of a server that completed the handshake exchange.
type Status struct {
	Target Target `json:"-"`

	// Human readable version name, e.g. "Paper 1.20.4"
	VersionName string `json:"version"`

	// Normalized single-line description (MOTD)
	Description string `json:"description"`

	ProtocolVersion int   `json:"protocol"`
	OnlinePlayers   int   `json:"online"`
	MaxPlayers      int   `json:"max"`
	LatencyMs       int64 `json:"latency_ms"`
}

// Geo is the location annotation resolved for a server address.
type Geo struct {
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Server represents a discovered server stored in the database.
type Server struct {
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	IP              string    `json:"ip"`
	VersionName     string    `json:"version"`
	Description     string    `json:"description"`
	CountryCode     string    `json:"country_code"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	LatencyMs       int64     `json:"latency_ms"`
	Count           int64     `json:"count"`
	Port            int       `json:"port"`
	ProtocolVersion int       `json:"protocol"`
	OnlinePlayers   int       `json:"online"`
	MaxPlayers      int       `json:"max"`
}

// Target returns the probe target of a stored server.
// ok is false when the stored address or port is not usable.
func (s Server) Target() (Target, bool) {
	addr, err := netip.ParseAddr(s.IP)
	if err != nil || s.Port < 1 || s.Port > 65535 {
		return Target{}, false
	}

	return Target{Addr: addr, Port: uint16(s.Port)}, true
}
