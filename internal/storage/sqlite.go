// Package storage keeps discovered servers in a SQLite database with embedded schema migrations.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/woozymasta/mcscan/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

const serverColumns = `ip, port, version, protocol, description, online, max_players, latency_ms,
	country_code, latitude, longitude, count, first_seen, last_seen`

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New opens the database at dbPath, sets connection pool parameters and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertStatus inserts a server seen at the given time or refreshes the stored row.
// A nil geo keeps the stored location.
func (r *Repository) UpsertStatus(st models.Status, geo *models.Geo, seen time.Time) error {
	var g models.Geo
	if geo != nil {
		g = *geo
	}

	query := `
	INSERT INTO servers (` + serverColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(ip, port) DO UPDATE SET
		count = count + 1,
		last_seen = excluded.last_seen,
		version = excluded.version,
		protocol = excluded.protocol,
		description = excluded.description,
		online = excluded.online,
		max_players = excluded.max_players,
		latency_ms = excluded.latency_ms,

		-- Location only when resolved
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE servers.country_code END,
		latitude     = CASE WHEN excluded.country_code != '' THEN excluded.latitude ELSE servers.latitude END,
		longitude    = CASE WHEN excluded.country_code != '' THEN excluded.longitude ELSE servers.longitude END;
	`

	_, err := r.db.Exec(query,
		st.Target.Addr.String(), int(st.Target.Port), st.VersionName, st.ProtocolVersion, st.Description,
		st.OnlinePlayers, st.MaxPlayers, st.LatencyMs,
		g.CountryCode, g.Latitude, g.Longitude,
		seen.UTC(), seen.UTC(),
	)

	return err
}

// GetServers retrieves all servers sorted by the last seen timestamp in descending order.
func (r *Repository) GetServers() ([]models.Server, error) {
	rows, err := r.db.Query(`SELECT ` + serverColumns + ` FROM servers ORDER BY last_seen DESC, ip, port`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var servers []models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

// GetServer retrieves one server, nil when it is not stored.
func (r *Repository) GetServer(ip string, port int) (*models.Server, error) {
	row := r.db.QueryRow(`SELECT `+serverColumns+` FROM servers WHERE ip = ? AND port = ?`, ip, port)

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// DeleteServer removes the server identified by ip and port.
func (r *Repository) DeleteServer(ip string, port int) error {
	_, err := r.db.Exec(`DELETE FROM servers WHERE ip = ? AND port = ?`, ip, port)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (models.Server, error) {
	var s models.Server
	err := row.Scan(
		&s.IP, &s.Port, &s.VersionName, &s.ProtocolVersion, &s.Description,
		&s.OnlinePlayers, &s.MaxPlayers, &s.LatencyMs,
		&s.CountryCode, &s.Latitude, &s.Longitude,
		&s.Count, &s.FirstSeen, &s.LastSeen,
	)

	return s, err
}
