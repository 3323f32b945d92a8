package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a limited number of probes through to test recovery.
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Options configures a Breaker.
type Options struct {
	// MinRequests is the number of outcomes needed in the window before the
	// failure ratio is evaluated.
	MinRequests int
	// FailureRatio opens the breaker when reached, in (0,1].
	FailureRatio float64
	// Window is how many recent outcomes are kept. Defaults to twice
	// MinRequests, and never less than MinRequests.
	Window int
	// OpenFor is the cool-off before probes are allowed.
	OpenFor time.Duration
	// HalfOpenProbes is the number of consecutive successful probes needed to
	// close. It also caps concurrent probes.
	HalfOpenProbes int
	Target         string
	Logger         *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MinRequests <= 0 {
		o.MinRequests = 1
	}
	if o.FailureRatio <= 0 {
		o.FailureRatio = 0.5
	}
	o.FailureRatio = min(o.FailureRatio, 1)
	if o.Window <= 0 {
		o.Window = 2 * o.MinRequests
	}
	o.Window = max(o.Window, o.MinRequests)
	if o.OpenFor <= 0 {
		o.OpenFor = 30 * time.Second
	}
	if o.HalfOpenProbes <= 0 {
		o.HalfOpenProbes = 1
	}
	o.Target = strings.TrimSpace(o.Target)
	if o.Target == "" {
		o.Target = "default"
	}
	return o
}

// Breaker is a failure-ratio circuit breaker over a sliding window of the
// most recent outcomes.
type Breaker struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	state    State
	window   []bool // true marks a failure
	next     int
	filled   int
	failures int
	inFlight int
	probesOK int
	openedAt time.Time
}

// NewBreaker constructs a closed breaker.
func NewBreaker(opts Options) *Breaker {
	opts = opts.withDefaults()
	b := &Breaker{
		opts:   opts,
		now:    time.Now,
		window: make([]bool, opts.Window),
	}
	setStateGauge(opts.Target, Closed)
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. After the cool-off an open
// breaker moves to half-open and admits up to HalfOpenProbes requests.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.opts.OpenFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		fallthrough
	case HalfOpen:
		if b.inFlight >= b.opts.HalfOpenProbes {
			return false
		}
		b.inFlight++
	}
	return true
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		if !success {
			b.moveLocked(ctx, Open)
			return
		}
		if b.probesOK++; b.probesOK >= b.opts.HalfOpenProbes {
			b.moveLocked(ctx, Closed)
		}
		return
	}

	b.recordLocked(!success)
	if b.filled >= b.opts.MinRequests && float64(b.failures)/float64(b.filled) >= b.opts.FailureRatio {
		b.moveLocked(ctx, Open)
	}
}

// Do runs fn when the breaker allows it and reports the outcome. Errors for
// which countable returns false are passed through without counting as
// failures; a nil countable counts every error.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, countable func(error) bool) error {
	if b == nil {
		return fn(ctx)
	}
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	failed := err != nil && (countable == nil || countable(err))
	b.Report(ctx, !failed)
	return err
}

// recordLocked pushes one outcome into the ring, evicting the oldest.
func (b *Breaker) recordLocked(failed bool) {
	if b.filled == len(b.window) {
		if b.window[b.next] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.window[b.next] = failed
	if failed {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.window)
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.openedAt = time.Time{}
	if to == Open {
		b.openedAt = b.now()
	}
	clear(b.window)
	b.next, b.filled, b.failures = 0, 0, 0
	b.inFlight, b.probesOK = 0, 0

	setStateGauge(b.opts.Target, to)
	countTransition(b.opts.Target, from, to)
	b.logger(ctx).Warn().
		Str("target", b.opts.Target).
		Stringer("from_state", from).
		Stringer("to_state", to).
		Func(func(e *zerolog.Event) {
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				e.Str("trace_id", sc.TraceID().String())
			}
		}).
		Msg("breaker_transition")
}

func (b *Breaker) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.opts.Logger != nil {
		return b.opts.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
