package services

import "time"

// Clock supplies turn timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// GetCurrentTimestamp returns the current time in ISO8601 form.
func GetCurrentTimestamp() string {
	return SystemClock.Now().Format(time.RFC3339)
}
