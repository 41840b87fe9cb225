package bench

import (
	"sort"
)

// DefaultPriceRatio is the ARM to x86 GB-second price ratio for AWS Lambda.
const DefaultPriceRatio = 0.0000133334 / 0.0000166667

// Comparison holds variant B measured against baseline A for one key.
type Comparison struct {
	Key           string  `json:"key"`
	A             float64 `json:"a_ms"`
	B             float64 `json:"b_ms"`
	SpeedupPct    float64 `json:"speedup_pct"`
	CostRatio     float64 `json:"cost_ratio"`
	CostSavingPct float64 `json:"cost_saving_pct"`
}

// Compare pairs the mean times of two variants. Keys missing from either
// side, or with a non-positive baseline, are skipped. A non-positive
// priceRatio selects DefaultPriceRatio.
func Compare(a, b map[string]float64, priceRatio float64) []Comparison {
	if priceRatio <= 0 {
		priceRatio = DefaultPriceRatio
	}

	out := make([]Comparison, 0, len(a))
	for key, baseline := range a {
		other, ok := b[key]
		if !ok || baseline <= 0 {
			continue
		}
		costRatio := (other / baseline) * priceRatio
		out = append(out, Comparison{
			Key:           key,
			A:             baseline,
			B:             other,
			SpeedupPct:    (baseline - other) / baseline * 100,
			CostRatio:     costRatio,
			CostSavingPct: (1 - costRatio) * 100,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return stepLess(out[i].Key, out[j].Key)
	})
	return out
}
