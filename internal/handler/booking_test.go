package handler_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func futureSlot() time.Time {
	return time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
}

func TestListDepartmentsAndServices_Public(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/v1/departments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	deps, ok := body["departments"].([]any)
	require.True(t, ok)
	require.Len(t, deps, 1)

	rec = app.do(t, http.MethodGet, "/v1/departments/1/services", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	svcs, ok := body["services"].([]any)
	require.True(t, ok)
	require.Len(t, svcs, 1)
}

func TestGetService_AnonymousAndAuthenticated(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/v1/services/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, has := decodeBody(t, rec)["myAppointments"]
	assert.False(t, has)

	pair := app.register(t, "citizen@example.lk", "Sup3rSecret")
	rec = app.do(t, http.MethodPost, "/v1/appointments", pair.AccessToken, map[string]any{
		"serviceId": 1, "slotStartsAt": futureSlot(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodGet, "/v1/services/1", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["myAppointments"])
}

func TestGetService_NotFound(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/v1/services/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBook_SuccessPublishesEvent(t *testing.T) {
	app := newTestApp(t)
	pair := app.register(t, "citizen@example.lk", "Sup3rSecret")

	rec := app.do(t, http.MethodPost, "/v1/appointments", pair.AccessToken, map[string]any{
		"serviceId": 1, "slotStartsAt": futureSlot(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	appt, ok := body["appointment"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, appt["reference"])
	assert.Equal(t, "CONFIRMED", appt["status"])

	require.Len(t, app.events.appointments, 1)
	assert.Equal(t, "National Identity Card Renewal", app.events.appointments[0].ServiceName)
}

func TestBook_SlotFullConflicts(t *testing.T) {
	app := newTestApp(t)
	slot := futureSlot()

	// Seeded capacity is 2.
	for i := 0; i < 2; i++ {
		email := fmt.Sprintf("citizen%d@example.lk", i)
		p := app.register(t, email, "Sup3rSecret")
		rec := app.do(t, http.MethodPost, "/v1/appointments", p.AccessToken, map[string]any{
			"serviceId": 1, "slotStartsAt": slot,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	p := app.register(t, "late@example.lk", "Sup3rSecret")
	rec := app.do(t, http.MethodPost, "/v1/appointments", p.AccessToken, map[string]any{
		"serviceId": 1, "slotStartsAt": slot,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBook_Validation(t *testing.T) {
	app := newTestApp(t)
	pair := app.register(t, "citizen@example.lk", "Sup3rSecret")

	rec := app.do(t, http.MethodPost, "/v1/appointments", pair.AccessToken, map[string]any{
		"serviceId": 1, "slotStartsAt": time.Now().UTC().Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "past slot")

	rec = app.do(t, http.MethodPost, "/v1/appointments", pair.AccessToken, map[string]any{
		"serviceId": 999, "slotStartsAt": futureSlot(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown service")
}

func TestListMineAndCancel(t *testing.T) {
	app := newTestApp(t)
	pair := app.register(t, "citizen@example.lk", "Sup3rSecret")

	rec := app.do(t, http.MethodPost, "/v1/appointments", pair.AccessToken, map[string]any{
		"serviceId": 1, "slotStartsAt": futureSlot(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decodeBody(t, rec)["appointment"].(map[string]any)
	id := uint64(appt["id"].(float64))

	rec = app.do(t, http.MethodGet, "/v1/appointments", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)["appointments"].([]any)
	require.Len(t, list, 1)

	rec = app.do(t, http.MethodDelete, fmt.Sprintf("/v1/appointments/%d", id), pair.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCancel_ForeignAppointmentForbidden(t *testing.T) {
	app := newTestApp(t)
	owner := app.register(t, "owner@example.lk", "Sup3rSecret")
	other := app.register(t, "other@example.lk", "Sup3rSecret")

	rec := app.do(t, http.MethodPost, "/v1/appointments", owner.AccessToken, map[string]any{
		"serviceId": 1, "slotStartsAt": futureSlot(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decodeBody(t, rec)["appointment"].(map[string]any)
	id := uint64(appt["id"].(float64))

	rec = app.do(t, http.MethodDelete, fmt.Sprintf("/v1/appointments/%d", id), other.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodDelete, "/v1/appointments/999", owner.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
