package database

import "time"

// Now is the timestamp written by repositories: UTC at the microsecond precision postgres keeps,
// so values read back compare equal to the ones written.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Timestamp normalises a caller supplied time the same way as Now.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
