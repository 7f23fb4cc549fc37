package core

import "time"

// Clock supplies the timestamps used for created_at/updated_at and as the
// matching tie-breaker. Injected so tests can pin time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NewClock returns a wall-clock implementation in UTC.
func NewClock() Clock { return realClock{} }
