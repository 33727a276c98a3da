// Package queue defines the message payloads exchanged with the broker and
// the background consumer that feeds the notification pipeline.
package queue

// Queue names. Durable queues on the default exchange.
const (
	AuthEventsQueue  = "auth.events"
	AppointmentQueue = "appointment.booked"
)

// Auth event kinds.
const (
	EventUserRegistered  = "user.registered"
	EventSessionsRevoked = "user.sessions_revoked"
)

// AuthEvent is published on account-lifecycle changes the notification
// service cares about: a new registration, or a global logout that
// invalidated every open session.
type AuthEvent struct {
	Kind       string `json:"kind"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	OccurredAt string `json:"occurred_at"`
}

// AppointmentBookedEvent is published when a citizen books a service slot.
// It carries enough for downstream consumers to notify or log without
// querying the primary database.
type AppointmentBookedEvent struct {
	AppointmentID uint64 `json:"appointment_id"`
	Reference     string `json:"reference"`
	UserID        uint64 `json:"user_id"`
	Email         string `json:"email"`
	ServiceID     uint64 `json:"service_id"`
	ServiceName   string `json:"service_name"`
	SlotStartsAt  string `json:"slot_starts_at"`
	BookedAt      string `json:"booked_at"`
}
