// Package clock provides an injectable time source.
package clock

import "time"

// Clock defines an interface for getting the current time.
// This allows us to inject a fake time during unit tests.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the actual system time.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Mock implements Clock for testing specific scenarios. Advance moves the
// mock time forward; a zero Mock starts at the zero time, so tests usually
// seed it with a fixed instant.
type Mock struct {
	Time time.Time
}

func (m *Mock) Now() time.Time {
	return m.Time
}

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.Time = m.Time.Add(d)
}
