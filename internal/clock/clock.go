package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time.Now so batch jobs and accrual rules can be tested
// against a frozen calendar.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func NewReal() Clock {
	return realClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewReal),
)
