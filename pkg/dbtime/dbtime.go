//nolint:revive // exported
package dbtime

import "time"

// DBNow returns the current time normalized for storage.
func DBNow() time.Time {
	return DBTime(time.Now())
}

// DBTime normalizes a time for storage. Rows keep UTC so comparisons
// across the store and event payloads stay consistent.
func DBTime(t time.Time) time.Time {
	return t.UTC()
}

// FromUnix converts a stored unix-seconds column back to a normalized time.
func FromUnix(sec int64) time.Time {
	return DBTime(time.Unix(sec, 0))
}

// FromUnixMilli converts a stored unix-milliseconds column back to a
// normalized time.
func FromUnixMilli(ms int64) time.Time {
	return DBTime(time.UnixMilli(ms))
}
