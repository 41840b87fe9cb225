package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/store"
)

func writeLog(t *testing.T, rows []domain.StepResult) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "results.csv")
	sink, err := store.NewCSVSink(path)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	for _, row := range rows {
		if err := sink.Write(context.Background(), row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	return path
}

func TestLoadCSVMeansSynthesizesTotals(t *testing.T) {
	names := []string{"Greyscale", "Resize", "ToneMap", "Rotate", "ConvertAndStore"}
	var rows []domain.StepResult
	for run := 1; run <= 2; run++ {
		for i, name := range names {
			rows = append(rows, domain.StepResult{
				RunID:       run,
				RunType:     domain.RunTypeBenchmark,
				StepName:    name,
				FunctionID:  domain.FunctionID("pixel_func", "x86", i+1),
				LogicTimeMS: float64(run * 10),
				RoundTripMS: float64(run * 20),
				Success:     true,
			})
		}
	}

	means, err := loadCSVMeans(writeLog(t, rows), store.MetricLogic)
	if err != nil {
		t.Fatalf("load means: %v", err)
	}
	if means["Resize"] != 15 {
		t.Fatalf("expected resize mean 15, got %v", means["Resize"])
	}
	if means[domain.StepPipelineTotal] != 75 {
		t.Fatalf("expected synthesized total mean 75, got %v", means[domain.StepPipelineTotal])
	}

	roundTrip, err := loadCSVMeans(writeLog(t, rows), store.MetricRoundTrip)
	if err != nil {
		t.Fatalf("load round trip means: %v", err)
	}
	if roundTrip[domain.StepPipelineTotal] != 150 {
		t.Fatalf("expected synthesized round trip total 150, got %v", roundTrip[domain.StepPipelineTotal])
	}
}

func TestLoadCSVMeansRejectsEmptyLog(t *testing.T) {
	if _, err := loadCSVMeans(writeLog(t, nil), store.MetricLogic); err == nil {
		t.Fatal("expected error for empty log")
	}
}

func TestParseMetric(t *testing.T) {
	for in, want := range map[string]store.Metric{
		"logic":         store.MetricLogic,
		"logic_time_ms": store.MetricLogic,
		"round_trip":    store.MetricRoundTrip,
	} {
		got, err := parseMetric(in)
		if err != nil || got != want {
			t.Fatalf("parseMetric(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseMetric("p99"); err == nil {
		t.Fatal("expected unknown metric error")
	}
}
