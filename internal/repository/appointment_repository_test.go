package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// The capacity count must stay a plain aggregate: Postgres rejects FOR
// UPDATE combined with count(*), so serialization happens on the service
// row lock instead. The trailing anchor fails the match if a locking
// clause ever reappears after the count's last placeholder.
var countSlotPattern = regexp.QuoteMeta(`SELECT count(*) FROM appointments
WHERE service_id=$1 AND slot_starts_at=$2 AND status=$3`) + `$`

func TestAppointmentRepo_Book(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepo(db)

	slot := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM services WHERE id=$1 FOR UPDATE`)).
		WithArgs(uint64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uint64(3)))
	mock.ExpectQuery(countSlotPattern).
		WithArgs(uint64(3), slot, model.AppointmentConfirmed).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO appointments`)).
		WithArgs("ref-1", uint64(7), uint64(3), slot, model.AppointmentConfirmed).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(uint64(42), now, now))
	mock.ExpectCommit()

	a := model.Appointment{
		Reference:    "ref-1",
		UserID:       7,
		ServiceID:    3,
		SlotStartsAt: slot,
		Status:       model.AppointmentConfirmed,
	}
	require.NoError(t, repo.Book(context.Background(), &a, 2))
	assert.Equal(t, uint64(42), a.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_Book_SlotFullRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepo(db)

	slot := time.Now().UTC().Add(48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM services WHERE id=$1 FOR UPDATE`)).
		WithArgs(uint64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uint64(3)))
	mock.ExpectQuery(countSlotPattern).
		WithArgs(uint64(3), slot, model.AppointmentConfirmed).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectRollback()

	a := model.Appointment{UserID: 7, ServiceID: 3, SlotStartsAt: slot, Status: model.AppointmentConfirmed}
	assert.ErrorIs(t, repo.Book(context.Background(), &a, 2), ErrSlotFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_Book_MissingServiceRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepo(db)

	slot := time.Now().UTC().Add(48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM services WHERE id=$1 FOR UPDATE`)).
		WithArgs(uint64(999)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	a := model.Appointment{UserID: 7, ServiceID: 999, SlotStartsAt: slot, Status: model.AppointmentConfirmed}
	assert.ErrorIs(t, repo.Book(context.Background(), &a, 2), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_ListForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepo(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM appointments WHERE user_id=$1 ORDER BY slot_starts_at DESC`)).
		WithArgs(uint64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "reference", "user_id", "service_id", "slot_starts_at", "status", "created_at", "updated_at",
		}).
			AddRow(uint64(2), "ref-2", uint64(7), uint64(3), now.Add(time.Hour), model.AppointmentConfirmed, now, now).
			AddRow(uint64(1), "ref-1", uint64(7), uint64(3), now, model.AppointmentCancelled, now, now))

	appts, err := repo.ListForUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, "ref-2", appts[0].Reference)
	assert.Equal(t, model.AppointmentCancelled, appts[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_Cancel(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepo(db)

	lookup := regexp.QuoteMeta(`SELECT user_id, status FROM appointments WHERE id=$1`)

	mock.ExpectQuery(lookup).WithArgs(uint64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "status"}).AddRow(uint64(7), model.AppointmentConfirmed))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE appointments SET status=$2, updated_at=now() WHERE id=$1`)).
		WithArgs(uint64(42), model.AppointmentCancelled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Cancel(context.Background(), 42, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepo_Cancel_ForeignAndMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAppointmentRepo(db)

	lookup := regexp.QuoteMeta(`SELECT user_id, status FROM appointments WHERE id=$1`)

	mock.ExpectQuery(lookup).WithArgs(uint64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "status"}).AddRow(uint64(8), model.AppointmentConfirmed))
	mock.ExpectQuery(lookup).WithArgs(uint64(99)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "status"}))

	assert.ErrorIs(t, repo.Cancel(context.Background(), 42, 7), ErrForbidden)
	assert.ErrorIs(t, repo.Cancel(context.Background(), 99, 7), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
