package events

import (
	"fmt"
	"time"
)

// NaiveLayout is the wire format of start_datetime: no zone suffix.
const NaiveLayout = "2006-01-02T15:04:05"

// Local is the fixed offset every naive timestamp is read and written in.
// Bahia has observed UTC-3 without daylight saving since 2012.
var Local = time.FixedZone("America/Bahia", -3*60*60)

// FormatNaive renders t's wall clock in Local without an offset.
func FormatNaive(t time.Time) string {
	return t.In(Local).Format(NaiveLayout)
}

// ParseNaive parses a naive timestamp into Local. Minute precision
// ("2006-01-02T15:04") and RFC 3339 input are accepted too.
func ParseNaive(value string) (time.Time, error) {
	for _, layout := range []string{NaiveLayout, "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, Local); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse naive timestamp %q: %w", value, err)
	}
	return t.In(Local), nil
}

// FromWallClock reinterprets t's wall clock as Local, discarding its zone.
// Postgres "timestamp" columns scan back as UTC values carrying the naive
// wall clock.
func FromWallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Local)
}

// Day truncates t to midnight in Local.
func Day(t time.Time) time.Time {
	l := t.In(Local)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Local)
}
