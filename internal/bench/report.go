package bench

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dunamismax/pixelbench/internal/pipeline"
)

// WriteReport prints the session performance report.
func WriteReport(w io.Writer, s Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(tw, rule)
	fmt.Fprintf(tw, "PERFORMANCE REPORT session=%s mode=%s arch=%s runs=%d warmup=%d\n", s.ID, s.Mode, s.Arch, s.Runs, s.Warmup)
	fmt.Fprintln(tw, rule)

	if s.Mode == pipeline.ModePipeline && s.Report.Total != nil && s.Report.Total.RoundTrip.N > 0 {
		total := s.Report.Total
		fmt.Fprintln(tw, "\nEnd-to-end pipeline latency (client side):")
		fmt.Fprintf(tw, "  Avg:\t%.2f ms\n", total.RoundTrip.Mean)
		fmt.Fprintf(tw, "  Std Dev:\t%.2f ms\n", total.RoundTrip.StdDev)
		fmt.Fprintf(tw, "  CV:\t%.4f\n", total.RoundTrip.CV)
		fmt.Fprintf(tw, "  Logic sum:\t%.2f ms\n", total.Logic.Mean)
	}

	fmt.Fprintln(tw, "\nPer-step logic time (server side) and round trip:")
	fmt.Fprintln(tw, "Step\tN\tAvg (ms)\tStdDev\tCV\tRT Avg (ms)\tRT CV\tFailures")
	for _, step := range s.Report.Steps {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.4f\t%.2f\t%.4f\t%d\n",
			step.Step,
			step.Logic.N,
			step.Logic.Mean,
			step.Logic.StdDev,
			step.Logic.CV,
			step.RoundTrip.Mean,
			step.RoundTrip.CV,
			step.Failures,
		)
	}
	fmt.Fprintln(tw, rule)
	return tw.Flush()
}

// WriteComparison prints a cross-variant table with B measured against A.
func WriteComparison(w io.Writer, labelA, labelB string, rows []Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Step\t%s (ms)\t%s (ms)\tSpeedup %%\tCost ratio\tCost saving %%\n", labelA, labelB)
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%+.2f\t%.4f\t%+.2f\n",
			row.Key, row.A, row.B, row.SpeedupPct, row.CostRatio, row.CostSavingPct)
	}
	return tw.Flush()
}
