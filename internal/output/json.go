package output

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"
	"github.com/woozymasta/mcscan/internal/models"
	"github.com/woozymasta/mcscan/internal/report"
)

// Record is one JSON lines entry.
type Record struct {
	Geo  *models.Geo `json:"geo,omitempty"`
	Host string      `json:"host"`
	models.Status
	Port uint16 `json:"port"`
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	w    *bufio.Writer
	enc  *json.Encoder
	c    io.Closer
	name string
}

// NewJSON returns a JSONSink over w. A nil closer leaves w open on Close.
func NewJSON(name string, w io.Writer, c io.Closer) *JSONSink {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	return &JSONSink{name: name, w: bw, enc: enc, c: c}
}

// Name implements Sink.
func (s *JSONSink) Name() string {
	return s.name
}

// Write implements Sink.
func (s *JSONSink) Write(line report.Line) error {
	rec := Record{
		Host:   line.Status.Target.Addr.String(),
		Port:   line.Status.Target.Port,
		Status: line.Status,
		Geo:    line.Geo,
	}
	if err := s.enc.Encode(rec); err != nil {
		return err
	}

	return s.w.Flush()
}

// Close implements Sink.
func (s *JSONSink) Close() error {
	err := s.w.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}

	return err
}
