package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcscan/internal/report"
)

// CSVSink appends rows to a CSV file, writing the header only when the file lacks it.
type CSVSink struct {
	file      *os.File
	w         *bufio.Writer
	known     map[uint64]struct{}
	path      string
	skipKnown bool
}

// OpenCSV opens path for appending. header is the canonical header line for this run.
// With skipKnown, rows for servers already in the file are not appended again.
func OpenCSV(path, header string, skipKnown bool) (*CSVSink, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}

	s := &CSVSink{
		file:      file,
		w:         bufio.NewWriter(file),
		path:      path,
		skipKnown: skipKnown,
		known:     make(map[uint64]struct{}),
	}

	hasHeader, endsWithNewline, err := s.load(header)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}

	if !endsWithNewline {
		_ = s.w.WriteByte('\n')
	}
	if !hasHeader {
		_, _ = s.w.WriteString(header + "\n")
	}
	if err := s.w.Flush(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write csv header %s: %w", path, err)
	}

	log.Debug().
		Str("path", path).
		Bool("header_present", hasHeader).
		Int("known", len(s.known)).
		Msg("CSV output opened")

	return s, nil
}

// load scans the existing content for the header and the servers already written.
// endsWithNewline is true for an empty file.
func (s *CSVSink) load(header string) (hasHeader, endsWithNewline bool, err error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return false, false, err
	}

	endsWithNewline = true
	r := bufio.NewReader(s.file)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			endsWithNewline = strings.HasSuffix(line, "\n")
			line = strings.TrimRight(line, "\r\n")

			if line == header {
				hasHeader = true
			} else if key, ok := rowKey(line); ok {
				s.known[key] = struct{}{}
			}
		}
		if err == io.EOF {
			return hasHeader, endsWithNewline, nil
		}
		if err != nil {
			return false, false, err
		}
	}
}

// rowKey hashes the host and port columns of a row.
func rowKey(row string) (uint64, bool) {
	host, rest, ok := strings.Cut(row, ",")
	if !ok || host == "" {
		return 0, false
	}
	port, _, _ := strings.Cut(rest, ",")
	if port == "" {
		return 0, false
	}

	return xxhash.Sum64String(host + "," + port), true
}

// Name implements Sink.
func (s *CSVSink) Name() string {
	return "csv:" + s.path
}

// Write implements Sink.
func (s *CSVSink) Write(line report.Line) error {
	key, _ := rowKey(line.CSV)
	if _, ok := s.known[key]; ok && s.skipKnown {
		return nil
	}
	s.known[key] = struct{}{}

	if _, err := s.w.WriteString(line.CSV + "\n"); err != nil {
		return err
	}

	return s.w.Flush()
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	err := s.w.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}

	return err
}
