package estimator

import (
	"math"

	json "github.com/goccy/go-json"
)

// Hyperparameter accessors. A missing key or an explicit null yields the
// default; unknown keys are never looked at.

func boolParam(kind string, p Params, key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidInputf("%s: hyperparameter %q must be a boolean, got %T", kind, key, v)
	}
	return b, nil
}

func floatParam(kind string, p Params, key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidInputf("%s: hyperparameter %q must be a number, got %v", kind, key, v)
	}
	return f, nil
}

func intParam(kind string, p Params, key string, def int) (int, error) {
	n, set, err := optionalIntParam(kind, p, key)
	if err != nil {
		return 0, err
	}
	if !set {
		return def, nil
	}
	return n, nil
}

// optionalIntParam distinguishes "absent or null" (set=false) from a value.
func optionalIntParam(kind string, p Params, key string) (n int, set bool, err error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false, invalidInputf("%s: hyperparameter %q must be an integer, got %v", kind, key, v)
	}
	return int(f), true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
