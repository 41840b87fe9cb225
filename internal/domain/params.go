package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	ParamWidth        = "width"
	ParamHeight       = "height"
	ParamTargetDepth  = "target_depth"
	ParamAngle        = "angle"
	ParamTargetFormat = "target_format"
	ParamBucket       = "bucket"
	ParamKey          = "key"

	// Legacy names still sent by older drivers.
	ParamBucketAlias = "bucket_name"
	ParamKeyAlias    = "s3_key"
)

// Params holds stage options as decoded from JSON.
type Params map[string]any

// Int reads an integer option. Floats truncate, numeric strings parse, and
// anything else yields fallback.
func (p Params) Int(key string, fallback int) int {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}

	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fallback
		}
		return int(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return fallback
}

func (p Params) Float(key string, fallback float64) float64 {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return fallback
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return fallback
		}
		f = parsed
	default:
		return fallback
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

// String returns the first non-empty string found under keys.
func (p Params) String(fallback string, keys ...string) string {
	for _, key := range keys {
		if s, ok := p[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return fallback
}

// With returns a copy of p with the given values set.
func (p Params) With(values Params) Params {
	out := make(Params, len(p)+len(values))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range values {
		out[k] = v
	}
	return out
}
