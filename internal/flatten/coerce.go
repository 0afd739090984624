package flatten

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// toNumber coerces a decoded JSON value to a float. It never fails: anything
// that is not a finite number or a numeric string yields nil.
func toNumber(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// toYear coerces a value to an integral year
func toYear(v any) (int, bool) {
	f := toNumber(v)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return 0, false
	}
	return int(*f), true
}
