package protection

import "time"

// Clock abstracts wall-clock reads so detectors and limiters can be driven by a
// virtual clock in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
