// Package system provides a real clock implementation.
package system

import "time"

// Clock reports wall-clock time in UTC. Callers convert to events.Local
// where a naive local time is needed.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
