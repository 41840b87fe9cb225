package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/gocarina/gocsv"
)

// CSVSink appends rows to a CSV file, one flushed line per row.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
}

// CSVFileName follows results_<prefix>_<arch>_<timestamp>.csv.
func CSVFileName(prefix, arch string, at time.Time) string {
	return fmt.Sprintf("results_%s_%s_%s.csv", prefix, arch, at.Format("20060102_150405"))
}

func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create results directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create results file: %w", err)
	}
	if err := gocsv.Marshal([]domain.StepResult{}, f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write results header: %w", err)
	}
	return &CSVSink{file: f}, nil
}

func (s *CSVSink) Path() string {
	return s.file.Name()
}

func (s *CSVSink) Write(_ context.Context, row domain.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := gocsv.MarshalWithoutHeaders([]domain.StepResult{row}, s.file); err != nil {
		return fmt.Errorf("append result row: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ReadCSV loads a result log written by CSVSink.
func ReadCSV(path string) ([]domain.StepResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	var rows []domain.StepResult
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse results file %s: %w", path, err)
	}
	return rows, nil
}
