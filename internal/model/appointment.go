package model

import "time"

// Appointment statuses. An appointment starts CONFIRMED (capacity is checked
// at booking time, there is no pending payment step) and may be cancelled by
// its owner while still in the future.
const (
	AppointmentConfirmed = "CONFIRMED"
	AppointmentCancelled = "CANCELLED"
)

// Department is a government department offering bookable services
// (e.g. Department for Registration of Persons).
type Department struct {
	ID   uint64 // departments.id
	Code string // departments.code (short unique code, e.g. "DRP")
	Name string // departments.name
}

// GovService is one bookable service offered by a department. SlotCapacity
// caps how many appointments may share the same starting slot.
type GovService struct {
	ID              uint64 // services.id
	DepartmentID    uint64 // services.department_id
	Name            string // services.name
	Description     string // services.description
	DurationMinutes uint32 // services.duration_minutes
	SlotCapacity    uint32 // services.slot_capacity
}

// Appointment models a citizen's booking of a service slot. Reference is a
// human-shareable code the citizen quotes at the counter.
type Appointment struct {
	ID           uint64    // appointments.id
	Reference    string    // appointments.reference (unique)
	UserID       uint64    // appointments.user_id
	ServiceID    uint64    // appointments.service_id
	SlotStartsAt time.Time // appointments.slot_starts_at (UTC)
	Status       string    // appointments.status
	CreatedAt    time.Time // appointments.created_at
	UpdatedAt    time.Time // appointments.updated_at
}
