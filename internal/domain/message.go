package domain

import "time"

// MessageKind closes the set of trigger message kinds the router and queues
// understand. Progress is an event, not a routed message.
type MessageKind string

const (
	MessageComplete MessageKind = "complete"
	MessageFail     MessageKind = "fail"
	MessageNext     MessageKind = "next"
	MessageProgress MessageKind = "progress"
)

func (k MessageKind) IsRoutable() bool {
	return k == MessageComplete || k == MessageFail || k == MessageNext
}

// SlotStatus is the lifecycle state of one ring buffer slot.
type SlotStatus int

const (
	SlotEmpty SlotStatus = iota
	SlotReady
	SlotInFlight
	SlotRemoved
)

func (s SlotStatus) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotReady:
		return "ready"
	case SlotInFlight:
		return "in_flight"
	case SlotRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Envelope carries one trigger message plus its routing and lease metadata.
// Envelopes are passed by pointer so the ring buffer can mutate lease state
// in place under a per-slot lock.
type Envelope struct {
	Kind       MessageKind
	SourceID   string
	SourcePort string

	// OutputData is the producing node's output; set for Complete/Next only.
	OutputData map[string]any
	// Err carries the failure detail; set for Fail only.
	Err error

	Timestamp time.Time

	// EnqueueCount tracks how many times this envelope has been made Ready,
	// including its initial insert. Used against the retry policy's
	// maxAttempts.
	EnqueueCount int

	LeaseID     string
	VisibleAt   time.Time
}

// Clone returns a value copy suitable for re-insertion (fresh lease state).
func (e *Envelope) Clone() *Envelope {
	cp := *e
	cp.LeaseID = ""
	cp.VisibleAt = time.Time{}
	return &cp
}

// Lease is a time-bounded claim on a Ready envelope returned by Checkout.
type Lease struct {
	ID       string
	Envelope *Envelope
}
