package repository

import (
	"context"
	"time"

	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// UserStore provides credential-store access for the session authenticator
// and the auth handlers.
type UserStore interface {
	// Create inserts a new user and returns its ID.
	Create(ctx context.Context, u *model.User, passwordHash string) (uint64, error)
	// GetByEmail loads a user by normalized email.
	GetByEmail(ctx context.Context, email string) (model.User, error)
	// GetByID loads a user by id.
	GetByID(ctx context.Context, id uint64) (model.User, error)
	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
	// SetActive flips the account's active flag.
	SetActive(ctx context.Context, id uint64, active bool) error
}

// RevocationStore is the registry behind the two token revocation
// mechanisms: per-token blacklist entries and the per-user global-logout
// watermark.
type RevocationStore interface {
	// Blacklist records one revoked token by hash. Inserting the same hash
	// twice is a no-op, not an error.
	Blacklist(ctx context.Context, tokenHash string, userID uint64, expiresAt time.Time, reason string) error
	// IsBlacklisted reports whether a live (non-expired) entry exists for
	// the hash.
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)
	// BumpWatermark sets the user's global-logout watermark to now,
	// invalidating every token issued before this call.
	BumpWatermark(ctx context.Context, userID uint64) error
	// Watermark returns the user's current watermark, or nil when the user
	// never logged out everywhere.
	Watermark(ctx context.Context, userID uint64) (*time.Time, error)
	// DeleteExpired removes blacklist entries whose mirrored expiry has
	// passed and returns how many were dropped.
	DeleteExpired(ctx context.Context) (int64, error)
}

// CatalogStore lists the bookable government-service catalog.
type CatalogStore interface {
	ListDepartments(ctx context.Context) ([]model.Department, error)
	ListServices(ctx context.Context, departmentID uint64) ([]model.GovService, error)
	GetService(ctx context.Context, id uint64) (model.GovService, error)
}

// AppointmentStore persists citizen appointments.
type AppointmentStore interface {
	// Book inserts an appointment after checking slot capacity, both inside
	// one transaction.
	Book(ctx context.Context, a *model.Appointment, capacity uint32) error
	// ListForUser returns the user's appointments, newest first.
	ListForUser(ctx context.Context, userID uint64) ([]model.Appointment, error)
	// CountForUserService counts the user's confirmed appointments for a service.
	CountForUserService(ctx context.Context, userID, serviceID uint64) (int64, error)
	// Cancel marks the appointment cancelled if it belongs to the user.
	Cancel(ctx context.Context, id, userID uint64) error
}
