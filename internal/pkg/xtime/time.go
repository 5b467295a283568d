package xtime

import "time"

// UTCNow returns the current time in UTC.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// Millis truncates t to the millisecond precision timestamps are persisted with.
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FromUnixMilli converts a persisted millisecond timestamp back to UTC time.
func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
