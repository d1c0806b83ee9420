package output

import (
	"time"

	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/report"
)

// Store persists accepted servers; *storage.Repository satisfies it.
type Store interface {
	UpsertStatus(st models.Status, geo *models.Geo, seen time.Time) error
}

// DBSink upserts every line into a Store. Closing it leaves the store open.
type DBSink struct {
	store Store
	now   func() time.Time
}

// NewDB returns a DBSink over store.
func NewDB(store Store) *DBSink {
	return &DBSink{store: store, now: time.Now}
}

// Name implements Sink.
func (s *DBSink) Name() string {
	return "sqlite"
}

// Write implements Sink.
func (s *DBSink) Write(line report.Line) error {
	return s.store.UpsertStatus(line.Status, line.Geo, s.now())
}

// Close implements Sink.
func (s *DBSink) Close() error {
	return nil
}
