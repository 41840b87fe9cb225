// Package tonemap builds the lookup tables used to simulate a higher
// bit-depth sensor in 8-bit arithmetic: a gamma curve quantized through a
// 10-bit intermediate, followed by optional reduction to fewer output
// levels.
package tonemap

import "math"

const (
	Gamma        = 2.2
	DefaultDepth = 8
	MinDepth     = 1
	MaxDepth     = 8

	intermediateMax = 1023.0
)

// Table maps every 8-bit input level to an output level.
type Table [256]uint8

func Identity() Table {
	var t Table
	for i := range t {
		t[i] = uint8(i)
	}
	return t
}

// GammaTable returns round(q(n^(1/gamma))*255) for every level, where q
// rounds to the nearest 10-bit step. Non-positive gamma uses Gamma.
func GammaTable(gamma float64) Table {
	if gamma <= 0 || math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		gamma = Gamma
	}
	inv := 1.0 / gamma

	var t Table
	for i := range t {
		n := float64(i) / 255.0
		c := math.Pow(n, inv)
		c = math.Round(c*intermediateMax) / intermediateMax
		t[i] = clampLevel(math.Round(c * 255.0))
	}
	return t
}

// DepthTable maps every level onto 2^depth evenly spaced outputs. depth is
// clamped to [MinDepth, MaxDepth]; at MaxDepth the table is the identity.
func DepthTable(depth int) Table {
	depth = ClampDepth(depth)
	levels := 1 << depth

	var t Table
	if levels <= 1 {
		return t
	}

	steps := float64(levels - 1)
	for i := range t {
		n := float64(i) / 255.0
		idx := math.Round(n * steps)
		t[i] = clampLevel(math.Round(idx / steps * 255.0))
	}
	return t
}

func ClampDepth(depth int) int {
	switch {
	case depth < MinDepth:
		return MinDepth
	case depth > MaxDepth:
		return MaxDepth
	default:
		return depth
	}
}

func (t Table) NonDecreasing() bool {
	for i := 1; i < len(t); i++ {
		if t[i] < t[i-1] {
			return false
		}
	}
	return true
}

// Levels counts the distinct output values.
func (t Table) Levels() int {
	var seen [256]bool
	n := 0
	for _, v := range t {
		if !seen[v] {
			seen[v] = true
			n++
		}
	}
	return n
}

func clampLevel(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
