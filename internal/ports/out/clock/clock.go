package clock

import "time"

// Clock provides time to the application. Rating timestamps are always taken from it.
type Clock interface {
	Now() time.Time
}
