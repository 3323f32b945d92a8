package resilience

import (
	"math/rand/v2"
	"time"
)

// maxBackoffShift bounds the exponent so the delay cannot overflow.
const maxBackoffShift = 16

// Backoff returns base doubled for each attempt after the first, with a
// symmetric jitter expressed as a fraction of the delay (0.2 == ±20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := min(max(attempt, 1)-1, maxBackoffShift)
	d := base << shift
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
