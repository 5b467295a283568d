package xtest

import (
	"encoding/json"
	"time"

	"github.com/google/go-cmp/cmp"
)

// jsonRawMessageComparer compares two payloads by their decoded value, so key
// order and whitespace do not matter.
func jsonRawMessageComparer(x, y json.RawMessage) bool {
	if len(x) == 0 && len(y) == 0 {
		return true
	}

	if len(x) == 0 || len(y) == 0 {
		return false
	}

	var xVal, yVal any
	if err := json.Unmarshal(x, &xVal); err != nil {
		return false
	}

	if err := json.Unmarshal(y, &yVal); err != nil {
		return false
	}

	return cmp.Equal(xVal, yVal)
}

func nilString(x *string) string {
	if x == nil {
		return ""
	}

	return *x
}

// Options are the comparison options used by Equal and Diff.
func Options(opts ...cmp.Option) []cmp.Option {
	return append(opts,
		cmp.Transformer("nilString", nilString),
		cmp.Comparer(jsonRawMessageComparer),
		cmp.Comparer(func(x, y time.Time) bool { return x.Equal(y) }),
	)
}

// Equal provides semantic equality comparison for records and snapshots.
func Equal(a, b any, opts ...cmp.Option) bool {
	return cmp.Equal(a, b, Options(opts...)...)
}

// Diff reports the differences between a and b, empty when Equal holds.
func Diff(a, b any, opts ...cmp.Option) string {
	return cmp.Diff(a, b, Options(opts...)...)
}
