package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dunamismax/pixelbench/internal/bench"
	"github.com/dunamismax/pixelbench/internal/config"
	"github.com/dunamismax/pixelbench/internal/store"
)

const stepsPerRun = 5

type args struct {
	A          string  `arg:"--a" help:"baseline CSV result log"`
	B          string  `arg:"--b" help:"candidate CSV result log"`
	LabelA     string  `arg:"--label-a" help:"baseline column label"`
	LabelB     string  `arg:"--label-b" help:"candidate column label"`
	Metric     string  `arg:"--metric" help:"logic or round_trip"`
	PriceRatio float64 `arg:"--price-ratio" help:"candidate to baseline price per GB-second; 0 uses the ARM/x86 Lambda ratio"`

	Postgres  string `arg:"--postgres" help:"read variants from Postgres instead of CSV files"`
	Mode      string `arg:"--mode" help:"execution mode of both variants (Postgres only)"`
	ArchA     string `arg:"--arch-a" help:"baseline arch (Postgres only)"`
	ArchB     string `arg:"--arch-b" help:"candidate arch (Postgres only)"`
	WorkloadA string `arg:"--workload-a" help:"baseline workload; empty matches all (Postgres only)"`
	WorkloadB string `arg:"--workload-b" help:"candidate workload; empty matches all (Postgres only)"`
}

func (args) Description() string {
	return "Compares mean step times of two benchmark variants and estimates the cost difference."
}

func main() {
	cfg := config.Load()
	a := args{
		LabelA:   "x86",
		LabelB:   "arm",
		Metric:   "logic",
		Postgres: cfg.Database.DSN,
		Mode:     "PIPELINE",
		ArchA:    "x86",
		ArchB:    "arm",
	}
	p := arg.MustParse(&a)

	logger := log.New(os.Stderr, "[compare] ", log.LstdFlags|log.Lmsgprefix)

	metric, err := parseMetric(a.Metric)
	if err != nil {
		p.Fail(err.Error())
	}

	var meansA, meansB map[string]float64
	switch {
	case a.A != "" && a.B != "":
		if meansA, err = loadCSVMeans(a.A, metric); err != nil {
			logger.Fatalf("load %s: %v", a.A, err)
		}
		if meansB, err = loadCSVMeans(a.B, metric); err != nil {
			logger.Fatalf("load %s: %v", a.B, err)
		}
	case a.Postgres != "":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		meansA, meansB, err = loadPostgresMeans(ctx, a, metric)
		if err != nil {
			logger.Fatalf("load postgres variants: %v", err)
		}
	default:
		p.Fail("either --a and --b or --postgres is required")
	}

	rows := bench.Compare(meansA, meansB, a.PriceRatio)
	if len(rows) == 0 {
		logger.Fatalf("no comparable steps between %s and %s", a.LabelA, a.LabelB)
	}
	if err := bench.WriteComparison(os.Stdout, a.LabelA, a.LabelB, rows); err != nil {
		logger.Fatalf("write comparison: %v", err)
	}
}

func parseMetric(value string) (store.Metric, error) {
	switch value {
	case "logic", string(store.MetricLogic):
		return store.MetricLogic, nil
	case "round_trip", string(store.MetricRoundTrip):
		return store.MetricRoundTrip, nil
	default:
		return "", fmt.Errorf("unknown metric %q", value)
	}
}

// loadCSVMeans reads one result log and averages the chosen metric per
// step. Logs without Pipeline_Total rows get them synthesized so that
// standalone sessions can still be compared end to end.
func loadCSVMeans(path string, metric store.Metric) (map[string]float64, error) {
	rows, err := store.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("result log is empty")
	}
	if !bench.HasTotals(rows) {
		rows = append(rows, bench.SynthesizeTotals(rows, stepsPerRun)...)
	}
	return bench.MeansByStep(rows, metric == store.MetricRoundTrip), nil
}

func loadPostgresMeans(ctx context.Context, a args, metric store.Metric) (map[string]float64, map[string]float64, error) {
	pg, err := store.NewPostgresSink(ctx, a.Postgres, store.Labels{})
	if err != nil {
		return nil, nil, err
	}
	defer pg.Close()

	meansA, err := pg.Means(ctx, store.Labels{Arch: a.ArchA, Mode: a.Mode, Workload: a.WorkloadA}, metric)
	if err != nil {
		return nil, nil, err
	}
	meansB, err := pg.Means(ctx, store.Labels{Arch: a.ArchB, Mode: a.Mode, Workload: a.WorkloadB}, metric)
	if err != nil {
		return nil, nil, err
	}
	return meansA, meansB, nil
}
