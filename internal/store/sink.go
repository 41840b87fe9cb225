// Package store persists benchmark result rows.
package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelbench/internal/domain"
)

// Sink receives result rows in the order they are produced.
type Sink interface {
	Write(ctx context.Context, row domain.StepResult) error
	Close() error
}

// Labels identify the variant a session ran against.
type Labels struct {
	SessionID string
	Arch      string
	Mode      string
	Workload  string
}

type Metric string

const (
	MetricLogic     Metric = "logic_time_ms"
	MetricRoundTrip Metric = "round_trip_ms"
)

// Tee fans rows out to every sink. A failing sink does not stop the others.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Write(ctx context.Context, row domain.StepResult) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
