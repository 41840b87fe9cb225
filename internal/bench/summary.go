package bench

import (
	"sort"

	"github.com/dunamismax/pixelbench/internal/domain"
	"github.com/dunamismax/pixelbench/internal/stage"
)

var stepOrder = map[string]int{
	stage.NameGreyscale:       1,
	stage.NameResize:          2,
	stage.NameToneMap:         3,
	stage.NameRotate:          4,
	stage.NameConvertAndStore: 5,
	domain.StepPipelineTotal:  6,
}

// stepLess orders known steps in pipeline order, then everything else by
// name.
func stepLess(a, b string) bool {
	ra, okA := stepOrder[a]
	rb, okB := stepOrder[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

type StepSummary struct {
	Step      string `json:"step"`
	Logic     Stats  `json:"logic"`
	RoundTrip Stats  `json:"round_trip"`
	Failures  int    `json:"failures"`
}

// Report aggregates the measured rows of a session.
type Report struct {
	Steps []StepSummary `json:"steps"`
	Total *StepSummary  `json:"pipeline_total,omitempty"`
}

func measured(row domain.StepResult) bool {
	return row.RunType == domain.RunTypeBenchmark && row.Success
}

// Summarize computes per-step statistics over successful BENCHMARK rows.
// Warmups never contribute; failed BENCHMARK rows are only counted.
func Summarize(rows []domain.StepResult) Report {
	type series struct {
		logic, roundTrip []float64
		failures         int
	}
	bySteps := make(map[string]*series)
	for _, row := range rows {
		if row.RunType != domain.RunTypeBenchmark {
			continue
		}
		s, ok := bySteps[row.StepName]
		if !ok {
			s = &series{}
			bySteps[row.StepName] = s
		}
		if !row.Success {
			s.failures++
			continue
		}
		s.logic = append(s.logic, row.LogicTimeMS)
		s.roundTrip = append(s.roundTrip, row.RoundTripMS)
	}

	var report Report
	for name, s := range bySteps {
		summary := StepSummary{
			Step:      name,
			Logic:     Describe(s.logic),
			RoundTrip: Describe(s.roundTrip),
			Failures:  s.failures,
		}
		if name == domain.StepPipelineTotal {
			report.Total = &summary
			continue
		}
		report.Steps = append(report.Steps, summary)
	}
	sort.Slice(report.Steps, func(i, j int) bool {
		return stepLess(report.Steps[i].Step, report.Steps[j].Step)
	})
	return report
}

// MeansByStep averages one metric of successful BENCHMARK rows per step.
func MeansByStep(rows []domain.StepResult, roundTrip bool) map[string]float64 {
	values := make(map[string][]float64)
	for _, row := range rows {
		if !measured(row) {
			continue
		}
		v := row.LogicTimeMS
		if roundTrip {
			v = row.RoundTripMS
		}
		values[row.StepName] = append(values[row.StepName], v)
	}

	out := make(map[string]float64, len(values))
	for step, vs := range values {
		out[step] = Describe(vs).Mean
	}
	return out
}

// SynthesizeTotals derives Pipeline_Total rows for logs that lack them,
// such as standalone sessions. A run qualifies when each of steps appears
// as a successful BENCHMARK row; the total sums both timings.
func SynthesizeTotals(rows []domain.StepResult, steps int) []domain.StepResult {
	type acc struct {
		logic, roundTrip float64
		seen             map[string]bool
		failed           bool
	}

	byRun := make(map[int]*acc)
	var runIDs []int
	for _, row := range rows {
		if row.RunType != domain.RunTypeBenchmark || row.StepName == domain.StepPipelineTotal {
			continue
		}
		a, ok := byRun[row.RunID]
		if !ok {
			a = &acc{seen: make(map[string]bool)}
			byRun[row.RunID] = a
			runIDs = append(runIDs, row.RunID)
		}
		if !row.Success {
			a.failed = true
			continue
		}
		a.logic += row.LogicTimeMS
		a.roundTrip += row.RoundTripMS
		a.seen[row.StepName] = true
	}

	sort.Ints(runIDs)
	var out []domain.StepResult
	for _, id := range runIDs {
		a := byRun[id]
		if a.failed || len(a.seen) != steps {
			continue
		}
		out = append(out, domain.StepResult{
			RunID:       id,
			RunType:     domain.RunTypeBenchmark,
			StepName:    domain.StepPipelineTotal,
			FunctionID:  domain.FunctionAll,
			LogicTimeMS: a.logic,
			RoundTripMS: a.roundTrip,
			Success:     true,
		})
	}
	return out
}

// HasTotals reports whether rows already carry Pipeline_Total entries.
func HasTotals(rows []domain.StepResult) bool {
	for _, row := range rows {
		if row.StepName == domain.StepPipelineTotal {
			return true
		}
	}
	return false
}
