package domain

import "fmt"

const (
	RunTypeWarmup    = "WARMUP"
	RunTypeBenchmark = "BENCHMARK"

	StepPipelineTotal = "Pipeline_Total"
	FunctionAll       = "ALL"
)

// StepResult is one row of the result log.
type StepResult struct {
	RunID       int     `csv:"run_id" json:"run_id"`
	RunType     string  `csv:"run_type" json:"run_type"`
	StepName    string  `csv:"step_name" json:"step_name"`
	FunctionID  string  `csv:"function_id" json:"function_id"`
	LogicTimeMS float64 `csv:"logic_time_ms" json:"logic_time_ms"`
	RoundTripMS float64 `csv:"round_trip_ms" json:"round_trip_ms"`
	Success     bool    `csv:"success" json:"success"`
	Error       string  `csv:"error" json:"error,omitempty"`
}

// FunctionID names a deployed stage, e.g. pixel_func3-arm.
func FunctionID(prefix, arch string, step int) string {
	return fmt.Sprintf("%s%d-%s", prefix, step, arch)
}
