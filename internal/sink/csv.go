package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mantonx/harvester/internal/extractor"
)

// CSVSink writes records to a CSV file. Quoting and escaping of separators,
// quotes, and newlines is handled by encoding/csv. Each append is flushed so
// rows written before a crash survive; a resumed session reopens the same
// file in append mode without rewriting the header.
type CSVSink struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	schema []string
}

// NewCSVSink creates a sink targeting the given path. The file is created
// lazily on Initialize.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Path returns the output file location
func (s *CSVSink) Path() string {
	return s.path
}

// Initialize opens the output file and writes the header row once. If the
// file already has content (a resume), the header is not rewritten.
func (s *CSVSink) Initialize(schema []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		s.schema = schema
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	info, err := os.Stat(s.path)
	existing := err == nil && info.Size() > 0

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	s.file = file
	s.writer = csv.NewWriter(file)
	s.schema = schema

	if !existing {
		if err := s.writer.Write(schema); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		s.writer.Flush()
		if err := s.writer.Error(); err != nil {
			return fmt.Errorf("failed to flush header: %w", err)
		}
	}

	return nil
}

// Append writes one record in schema order
func (s *CSVSink) Append(record *extractor.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return fmt.Errorf("sink not initialized")
	}

	row := make([]string, len(s.schema))
	for i, name := range s.schema {
		row[i] = record.GetString(name)
	}

	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}

	return nil
}

// Close flushes and closes the output file
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	s.file = nil
	s.writer = nil

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
