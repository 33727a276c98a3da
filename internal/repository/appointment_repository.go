package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ceylon-smart-citizen/auth-service/internal/database"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// AppointmentRepo implements AppointmentStore on PostgreSQL. Booking runs
// the capacity check and the insert in one transaction so two citizens
// racing for the last place in a slot cannot both get it.
type AppointmentRepo struct{ db *database.DB }

// NewAppointmentRepo returns an AppointmentRepo bound to the given database.
func NewAppointmentRepo(db *database.DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

// Book inserts the appointment if the slot still has room. The service row
// is locked FOR UPDATE before counting, so concurrent bookings of the same
// slot serialize at the storage layer; the count itself carries no locking
// clause (Postgres rejects FOR UPDATE combined with aggregates, and it
// would lock nothing on an empty slot anyway). Populates the generated id
// and timestamps on the provided record.
func (r *AppointmentRepo) Book(ctx context.Context, a *model.Appointment, capacity uint32) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var serviceID uint64
	err = tx.QueryRow(ctx,
		`SELECT id FROM services WHERE id=$1 FOR UPDATE`, a.ServiceID).Scan(&serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var taken int64
	err = tx.QueryRow(ctx, `
SELECT count(*) FROM appointments
WHERE service_id=$1 AND slot_starts_at=$2 AND status=$3`,
		a.ServiceID, a.SlotStartsAt, model.AppointmentConfirmed).Scan(&taken)
	if err != nil {
		return err
	}
	if taken >= int64(capacity) {
		return ErrSlotFull
	}

	err = tx.QueryRow(ctx, `
INSERT INTO appointments (reference, user_id, service_id, slot_starts_at, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`,
		a.Reference, a.UserID, a.ServiceID, a.SlotStartsAt, a.Status).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListForUser returns the user's appointments, newest slot first.
func (r *AppointmentRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, reference, user_id, service_id, slot_starts_at, status, created_at, updated_at
FROM appointments WHERE user_id=$1 ORDER BY slot_starts_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.Reference, &a.UserID, &a.ServiceID, &a.SlotStartsAt, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountForUserService counts the user's confirmed appointments for one service.
func (r *AppointmentRepo) CountForUserService(ctx context.Context, userID, serviceID uint64) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `
SELECT count(*) FROM appointments
WHERE user_id=$1 AND service_id=$2 AND status=$3`,
		userID, serviceID, model.AppointmentConfirmed).Scan(&n)
	return n, err
}

// Cancel marks the appointment cancelled. Returns ErrNotFound when no such
// appointment exists and ErrForbidden when it belongs to someone else.
func (r *AppointmentRepo) Cancel(ctx context.Context, id, userID uint64) error {
	var owner uint64
	var status string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, status FROM appointments WHERE id=$1`, id).Scan(&owner, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if owner != userID {
		return ErrForbidden
	}
	if status == model.AppointmentCancelled {
		return nil
	}
	_, err = r.db.Pool.Exec(ctx,
		`UPDATE appointments SET status=$2, updated_at=now() WHERE id=$1`,
		id, model.AppointmentCancelled)
	return err
}
