package checkout

import (
	"errors"
	"fmt"
)

// State is where a checkout session is in the payment flow.
type State string

const (
	StateIdle          State = "idle"
	StateCreatingOrder State = "creating_order"
	StateWidgetOpen    State = "widget_open"
	StateVerifying     State = "verifying"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Event drives a state transition.
type Event string

const (
	EventPay           Event = "pay"
	EventOrderMinted   Event = "order_minted"
	EventOrderFailed   Event = "order_failed"
	EventPaymentOK     Event = "payment_succeeded"
	EventDismissed     Event = "dismissed"
	EventPaymentFailed Event = "payment_failed"
	EventVerified      Event = "verified"
	EventVerifyFailed  Event = "verify_failed"
)

var (
	// ErrPaymentInProgress rejects Pay while an order is being created or verified.
	ErrPaymentInProgress = errors.New("payment already in progress")
	// ErrInvalidTransition is returned for events the current state does not accept.
	ErrInvalidTransition = errors.New("invalid checkout transition")
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventPay: StateCreatingOrder,
	},
	StateFailed: {
		EventPay: StateCreatingOrder,
	},
	StateCreatingOrder: {
		EventOrderMinted: StateWidgetOpen,
		EventOrderFailed: StateFailed,
	},
	StateWidgetOpen: {
		EventPaymentOK:     StateVerifying,
		EventDismissed:     StateFailed,
		EventPaymentFailed: StateFailed,
	},
	StateVerifying: {
		EventVerified:     StateCompleted,
		EventVerifyFailed: StateFailed,
	},
}

// Next returns the state reached from s on ev.
func Next(s State, ev Event) (State, error) {
	if to, ok := transitions[s][ev]; ok {
		return to, nil
	}
	if ev == EventPay && s.Busy() {
		return s, ErrPaymentInProgress
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}

// Busy reports whether a server round-trip for payment is outstanding.
func (s State) Busy() bool { return s == StateCreatingOrder || s == StateVerifying }

// Terminal reports whether no further event is accepted.
func (s State) Terminal() bool { return s == StateCompleted }

// Editable reports whether coupons may still change.
func (s State) Editable() bool { return s == StateIdle || s == StateFailed }
