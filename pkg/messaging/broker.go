package messaging

import (
	"context"
)

// Broker defines the interface for message brokers. The scheduling engine
// uses it to receive refresh signals published when another party mutates
// the calendar (booking, cancellation, reschedule).
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// RefreshSignal is the payload carried on the refresh channel.
type RefreshSignal struct {
	ProviderID    int64  `json:"provider_id"`
	AppointmentID int64  `json:"appointment_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
