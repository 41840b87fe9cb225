package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/queue"
	"github.com/dunamismax/pixelbench/internal/stage"
	"go.opentelemetry.io/otel"
)

type echoStage struct {
	name string
	resp domain.Response
	got  []domain.Request
}

func (e *echoStage) Name() string { return e.name }

func (e *echoStage) Invoke(_ context.Context, req domain.Request) domain.Response {
	e.got = append(e.got, req)
	return e.resp
}

func newTestServer(functions map[string]stage.Stage) *Server {
	return &Server{
		logger:    log.New(io.Discard, "", 0),
		sem:       make(chan struct{}, 1),
		functions: functions,
		metrics:   newMetrics(),
		tracer:    otel.Tracer("test"),
	}
}

func TestInvokeRunsHostedStage(t *testing.T) {
	fn := &echoStage{name: stage.NameRotate, resp: domain.Response{Success: true, Image: "abc", LogicTimeMS: 4.5}}
	s := newTestServer(map[string]stage.Stage{"pixel_func4-x86": fn})

	resp, err := s.invoke(context.Background(), queue.InvokeStagePayload{
		FunctionID: "pixel_func4-x86",
		Request:    domain.Request{Image: "input", Params: domain.Params{"angle": 90.0}},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !resp.Success || resp.Image != "abc" || resp.LogicTimeMS != 4.5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(fn.got) != 1 || fn.got[0].Image != "input" {
		t.Fatalf("expected request to reach the stage, got %+v", fn.got)
	}
	if len(s.sem) != 0 {
		t.Fatal("expected semaphore slot to be released")
	}
}

func TestInvokeRejectsUnknownFunction(t *testing.T) {
	s := newTestServer(map[string]stage.Stage{"pixel_func1-x86": &echoStage{name: stage.NameGreyscale}})

	_, err := s.invoke(context.Background(), queue.InvokeStagePayload{FunctionID: "pixel_func9-x86"})
	if !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("expected ErrUnknownFunction, got %v", err)
	}
}

func TestStageFailuresAreResultsNotErrors(t *testing.T) {
	fn := &echoStage{name: stage.NameGreyscale, resp: domain.Failure(domain.KindValidation, stage.NameGreyscale, domain.ErrMissingImage)}
	s := newTestServer(map[string]stage.Stage{"pixel_func1-arm": fn})

	resp, err := s.invoke(context.Background(), queue.InvokeStagePayload{FunctionID: "pixel_func1-arm"})
	if err != nil {
		t.Fatalf("expected stage failure to be returned as a response, got %v", err)
	}
	if resp.Success || resp.ErrorKind() != domain.KindValidation {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `pixelbench_worker_invocations_total{function="pixel_func1-arm",outcome="validation"} 1`) {
		t.Fatalf("expected validation outcome to be counted, metrics:\n%s", rec.Body.String())
	}
}

func TestInvokeGivesUpWaitingForSlotWhenDeadlinePasses(t *testing.T) {
	fn := &echoStage{name: stage.NameResize, resp: domain.Response{Success: true}}
	s := newTestServer(map[string]stage.Stage{"pixel_func2-x86": fn})
	s.sem <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp, err := s.invoke(ctx, queue.InvokeStagePayload{FunctionID: "pixel_func2-x86"})
	if err != nil {
		t.Fatalf("expected a failure response, got error %v", err)
	}
	if resp.Success || resp.ErrorKind() != domain.KindTimeout {
		t.Fatalf("expected timeout failure, got %+v", resp)
	}
	if len(fn.got) != 0 {
		t.Fatal("stage must not run without a slot")
	}
	if len(s.sem) != 1 {
		t.Fatal("expected the held slot to stay taken")
	}
}
