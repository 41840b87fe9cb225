package store

import (
	"context"
	"sync"

	"github.com/dunamismax/pixelbench/internal/domain"
)

type MemorySink struct {
	mu   sync.RWMutex
	rows []domain.StepResult
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, row domain.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

// Rows returns a copy of everything written so far.
func (s *MemorySink) Rows() []domain.StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StepResult, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *MemorySink) Close() error {
	return nil
}
