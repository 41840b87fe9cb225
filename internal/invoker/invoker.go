// Package invoker dispatches stage requests to deployed functions.
package invoker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/stage"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrThrottled       = errors.New("invocation throttled")
)

// Invoker calls one function by id. A non-nil error means the call could
// not be completed; stage-level failures come back inside the Response.
type Invoker interface {
	Invoke(ctx context.Context, functionID string, req domain.Request) (domain.Response, error)
}

// Local runs stages in-process. A call returns when the stage finishes or
// ctx ends, whichever comes first.
type Local struct {
	Functions map[string]stage.Stage
}

func NewLocal(functions map[string]stage.Stage) *Local {
	return &Local{Functions: functions}
}

func (l *Local) Invoke(ctx context.Context, functionID string, req domain.Request) (domain.Response, error) {
	s, ok := l.Functions[functionID]
	if !ok {
		return domain.Response{}, fmt.Errorf("%w: %s", ErrUnknownFunction, functionID)
	}

	// The stage keeps running after ctx ends; its late response is dropped.
	done := make(chan domain.Response, 1)
	go func() {
		done <- s.Invoke(ctx, req)
	}()

	select {
	case resp := <-done:
		if err := ctx.Err(); err != nil && resp.Success {
			return domain.Response{}, err
		}
		return resp, nil
	case <-ctx.Done():
		return domain.Response{}, ctx.Err()
	}
}

// Classify maps a dispatch error to the error kind recorded for the step.
func Classify(err error) domain.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return domain.KindTransport
}

// FailureResponse converts a dispatch error into a failed envelope.
func FailureResponse(stageName string, err error) domain.Response {
	return domain.Failure(Classify(err), stageName, err)
}
