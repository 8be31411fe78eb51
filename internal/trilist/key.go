package trilist

import (
	"fmt"
	"reflect"
	"time"
)

// Rank is one granularity level: a query name plus the function mapping a
// key to this rank's bucket position. Positions must be monotone in the
// key and coarser ranks must map more keys onto each position.
type Rank[K any] struct {
	Name     string
	Position func(K) int64
}

// defaultKeyDecode maps a backend-returned bound back onto K using the
// same rules as aggregate values.
func defaultKeyDecode[K any]() func(any) (K, error) {
	rt := reflect.TypeOf((*K)(nil)).Elem()
	return func(raw any) (K, error) {
		var zero K
		v, err := decodeAs(rt, raw)
		if err != nil {
			return zero, err
		}
		return v.(K), nil
	}
}

// sqlite hands DATETIME-affinity text back as a string; the layouts below
// cover the driver's own binding format plus the common SQL spellings.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DecodeTime maps a backend-returned bound onto time.Time. Use with
// KeyDecodedBy when keys are timestamps stored in a SQL backend.
func DecodeTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: stored key is %T, want time.Time", ErrTypeMismatch, raw)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: stored key %q is not a recognized timestamp", ErrTypeMismatch, s)
}

// TimeMinMax orders two timestamps. Suitable as the min/max function for
// time.Time keys.
func TimeMinMax(a, b time.Time) (time.Time, time.Time) {
	if b.Before(a) {
		return b, a
	}
	return a, b
}

// BucketByDuration returns a position function that buckets timestamps
// into windows of d (e.g. time.Minute, time.Hour).
func BucketByDuration(d time.Duration) func(time.Time) int64 {
	return func(t time.Time) int64 {
		return t.UnixNano() / int64(d)
	}
}
