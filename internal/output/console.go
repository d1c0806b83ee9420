package output

import (
	"bufio"
	"io"

	"github.com/woozymasta/mcscan/internal/report"
)

// LineSink writes the display form of each line to w, one per line.
type LineSink struct {
	w    *bufio.Writer
	c    io.Closer
	name string
}

// NewConsole returns a LineSink over w that never closes it.
func NewConsole(w io.Writer) *LineSink {
	return &LineSink{name: "console", w: bufio.NewWriter(w)}
}

// NewLineSink returns a LineSink that closes wc on Close.
func NewLineSink(name string, wc io.WriteCloser) *LineSink {
	return &LineSink{name: name, w: bufio.NewWriter(wc), c: wc}
}

// Name implements Sink.
func (s *LineSink) Name() string {
	return s.name
}

// Write implements Sink.
func (s *LineSink) Write(line report.Line) error {
	if _, err := s.w.WriteString(line.Display); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}

	return s.w.Flush()
}

// Close implements Sink.
func (s *LineSink) Close() error {
	err := s.w.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}

	return err
}
