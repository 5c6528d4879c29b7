package engine

import "time"

// Clock supplies the engine's notion of "now". Production uses the wall
// clock; tests and manual runs inject an offset clock so settlement math is
// deterministic.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func NewRealClock() Clock {
	return realClock{}
}

// offsetClock reports time as if it were started at origin: it advances at
// wall-clock speed from the injected instant.
type offsetClock struct {
	origin  time.Time
	started time.Time
}

func NewOffsetClock(origin time.Time) Clock {
	return &offsetClock{
		origin:  origin.UTC(),
		started: time.Now(),
	}
}

func (c *offsetClock) Now() time.Time {
	return c.origin.Add(time.Since(c.started))
}
