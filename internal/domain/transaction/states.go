package transaction

// State defines the lifecycle states of a brokered payment.
//
// INITIALIZED is set at record creation before the gateway confirms receipt of
// the push. PENDING means the gateway acknowledged that the push was sent.
// PROCESSING means payment is confirmed and funds are being prepared for
// release. FAILED and RELEASED are terminal.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StatePending     State = "PENDING"
	StateProcessing  State = "PROCESSING"
	StateFailed      State = "FAILED"
	StateReleased    State = "RELEASED"
)

// Terminal reports whether no further transition is defined from s
func (s State) Terminal() bool {
	return s == StateFailed || s == StateReleased
}

// Event defines the inputs that can advance a payment's state
type Event string

const (
	EventGatewayAccepted  Event = "GATEWAY_ACCEPTED"
	EventGatewayRejected  Event = "GATEWAY_REJECTED"
	EventPaymentConfirmed Event = "PAYMENT_CONFIRMED"
	EventPaymentFailed    Event = "PAYMENT_FAILED"
	EventReleaseDue       Event = "RELEASE_DUE"
)

// transitions defines every valid (state, event) pair. Anything absent from
// this table is rejected, which callers treat as a no-op: both reconciliation
// channels may deliver events redundantly or out of order, and terminal states
// accept nothing at all.
var transitions = map[State]map[Event]State{
	StateInitialized: {
		EventGatewayAccepted: StatePending,
		EventGatewayRejected: StateFailed,
	},
	StatePending: {
		EventPaymentConfirmed: StateProcessing,
		EventPaymentFailed:    StateFailed,
	},
	StateProcessing: {
		// PAYMENT_CONFIRMED is idempotent once the payment is confirmed
		EventPaymentConfirmed: StateProcessing,
		EventReleaseDue:       StateReleased,
	},
}

// Next computes the state reached by applying event to state. The second
// return value is false when the pair is not a defined transition.
func Next(state State, event Event) (State, bool) {
	allowed, exists := transitions[state]
	if !exists {
		return state, false
	}
	next, ok := allowed[event]
	if !ok {
		return state, false
	}
	return next, true
}
