package events

import "context"

// Stream carrying all donation lifecycle events.
const StreamDonations = "events:donation"

// Event types
const (
	EventDonationRecorded = "donation_recorded"
	EventPaymentReceived  = "payment_received"
	EventPayoutRequested  = "payout_requested"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
