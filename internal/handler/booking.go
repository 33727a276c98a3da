package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ceylon-smart-citizen/auth-service/internal/middleware"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
	"github.com/ceylon-smart-citizen/auth-service/internal/queue"
	"github.com/ceylon-smart-citizen/auth-service/internal/repository"
)

// BookingHandler serves the government-service catalog and citizen
// appointments. Catalog reads are public; booking requires an
// authenticated citizen.
type BookingHandler struct {
	Catalog      repository.CatalogStore
	Appointments repository.AppointmentStore
	Events       EventPublisher
	Logger       *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(catalog repository.CatalogStore, appts repository.AppointmentStore, events EventPublisher, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Catalog: catalog, Appointments: appts, Events: events, Logger: logger}
}

type departmentPart struct {
	ID   uint64 `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type servicePart struct {
	ID              uint64 `json:"id"`
	DepartmentID    uint64 `json:"departmentId"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes uint32 `json:"durationMinutes"`
	SlotCapacity    uint32 `json:"slotCapacity"`
}

type appointmentPart struct {
	ID           uint64    `json:"id"`
	Reference    string    `json:"reference"`
	ServiceID    uint64    `json:"serviceId"`
	SlotStartsAt time.Time `json:"slotStartsAt"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toAppointmentPart(a model.Appointment) appointmentPart {
	return appointmentPart{
		ID:           a.ID,
		Reference:    a.Reference,
		ServiceID:    a.ServiceID,
		SlotStartsAt: a.SlotStartsAt,
		Status:       a.Status,
		CreatedAt:    a.CreatedAt,
	}
}

// ListDepartments handles GET /v1/departments.
func (h *BookingHandler) ListDepartments(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	deps, err := h.Catalog.ListDepartments(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]departmentPart, 0, len(deps))
	for _, d := range deps {
		out = append(out, departmentPart{ID: d.ID, Code: d.Code, Name: d.Name})
	}
	return c.JSON(http.StatusOK, echo.Map{"departments": out})
}

// ListServices handles GET /v1/departments/:id/services.
func (h *BookingHandler) ListServices(c echo.Context) error {
	depID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || depID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid department id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	svcs, err := h.Catalog.ListServices(ctx, depID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]servicePart, 0, len(svcs))
	for _, s := range svcs {
		out = append(out, servicePart{
			ID: s.ID, DepartmentID: s.DepartmentID, Name: s.Name,
			Description: s.Description, DurationMinutes: s.DurationMinutes, SlotCapacity: s.SlotCapacity,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"services": out})
}

// GetService handles GET /v1/services/:id. The route runs under optional
// authentication: anonymous callers get the plain service record, while
// signed-in citizens also see how many confirmed appointments they already
// hold for it.
func (h *BookingHandler) GetService(c echo.Context) error {
	svcID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || svcID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.Catalog.GetService(ctx, svcID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	resp := echo.Map{"service": servicePart{
		ID: s.ID, DepartmentID: s.DepartmentID, Name: s.Name,
		Description: s.Description, DurationMinutes: s.DurationMinutes, SlotCapacity: s.SlotCapacity,
	}}
	if snap, ok := middleware.Identity(c); ok {
		if n, err := h.Appointments.CountForUserService(ctx, snap.ID, s.ID); err == nil {
			resp["myAppointments"] = n
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type bookReq struct {
	ServiceID    uint64    `json:"serviceId"`
	SlotStartsAt time.Time `json:"slotStartsAt"`
}

// Book handles POST /v1/appointments. Capacity is checked inside the same
// transaction as the insert, so an oversubscribed slot rejects with 409.
func (h *BookingHandler) Book(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req bookReq
	if err := c.Bind(&req); err != nil || req.ServiceID == 0 || req.SlotStartsAt.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "serviceId and slotStartsAt are required"})
	}
	slot := req.SlotStartsAt.UTC()
	if slot.Before(time.Now().UTC()) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot is in the past"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	svc, err := h.Catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	a := model.Appointment{
		Reference:    uuid.NewString(),
		UserID:       snap.ID,
		ServiceID:    svc.ID,
		SlotStartsAt: slot,
		Status:       model.AppointmentConfirmed,
	}
	if err := h.Appointments.Book(ctx, &a, svc.SlotCapacity); err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotFull):
			return c.JSON(http.StatusConflict, echo.Map{"error": "slot is fully booked"})
		case errors.Is(err, repository.ErrNotFound):
			// Service vanished between the catalog read and the booking tx.
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "booking failed"})
	}

	// Best effort: notification delivery hangs off the broker, not off this
	// request.
	_ = h.Events.PublishAppointmentBooked(ctx, queue.AppointmentBookedEvent{
		AppointmentID: a.ID,
		Reference:     a.Reference,
		UserID:        snap.ID,
		Email:         snap.Email,
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		SlotStartsAt:  slot.Format(time.RFC3339),
		BookedAt:      time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, echo.Map{"appointment": toAppointmentPart(a)})
}

// ListMine handles GET /v1/appointments.
func (h *BookingHandler) ListMine(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	appts, err := h.Appointments.ListForUser(ctx, snap.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]appointmentPart, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentPart(a))
	}
	return c.JSON(http.StatusOK, echo.Map{"appointments": out})
}

// Cancel handles DELETE /v1/appointments/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	apptID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || apptID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	switch err := h.Appointments.Cancel(ctx, apptID, snap.ID); {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "appointment not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
}
