package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ceylon-smart-citizen/auth-service/internal/config"
	"github.com/ceylon-smart-citizen/auth-service/internal/handler"
	"github.com/ceylon-smart-citizen/auth-service/internal/middleware"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
	"github.com/ceylon-smart-citizen/auth-service/internal/queue"
	"github.com/ceylon-smart-citizen/auth-service/internal/repository"
	"github.com/ceylon-smart-citizen/auth-service/internal/router"
	"github.com/ceylon-smart-citizen/auth-service/internal/token"
)

// In-memory store fakes in the shape of the repository interfaces. They
// back full-stack handler tests that drive the real routes and middleware
// through httptest.

type fakeUsers struct {
	seq  uint64
	byID map[uint64]model.User
}

var _ repository.UserStore = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User, passwordHash string) (uint64, error) {
	for _, ex := range f.byID {
		if ex.Email == u.Email {
			return 0, repository.ErrEmailExists
		}
		if ex.NICNumber == u.NICNumber {
			return 0, repository.ErrNICExists
		}
	}
	f.seq++
	cpy := *u
	cpy.ID = f.seq
	cpy.PasswordHash = passwordHash
	cpy.IsActive = true
	cpy.CreatedAt = time.Now().UTC()
	cpy.UpdatedAt = cpy.CreatedAt
	f.byID[cpy.ID] = cpy
	return cpy.ID, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, passwordHash string) error {
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) SetActive(_ context.Context, id uint64, active bool) error {
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	f.byID[id] = u
	return nil
}

type fakeRevocations struct {
	blacklisted map[string]string // hash -> reason
	watermarks  map[uint64]time.Time
}

var _ repository.RevocationStore = (*fakeRevocations)(nil)

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{blacklisted: map[string]string{}, watermarks: map[uint64]time.Time{}}
}

func (f *fakeRevocations) Blacklist(_ context.Context, hash string, _ uint64, _ time.Time, reason string) error {
	if _, ok := f.blacklisted[hash]; ok {
		return nil // idempotent
	}
	f.blacklisted[hash] = reason
	return nil
}

func (f *fakeRevocations) IsBlacklisted(_ context.Context, hash string) (bool, error) {
	_, ok := f.blacklisted[hash]
	return ok, nil
}

func (f *fakeRevocations) BumpWatermark(_ context.Context, userID uint64) error {
	f.watermarks[userID] = time.Now().UTC()
	return nil
}

func (f *fakeRevocations) Watermark(_ context.Context, userID uint64) (*time.Time, error) {
	wm, ok := f.watermarks[userID]
	if !ok {
		return nil, nil
	}
	return &wm, nil
}

func (f *fakeRevocations) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

type fakeCatalog struct {
	departments []model.Department
	services    map[uint64]model.GovService
}

var _ repository.CatalogStore = (*fakeCatalog)(nil)

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		departments: []model.Department{{ID: 1, Code: "DRP", Name: "Department for Registration of Persons"}},
		services: map[uint64]model.GovService{
			1: {ID: 1, DepartmentID: 1, Name: "National Identity Card Renewal", DurationMinutes: 20, SlotCapacity: 2},
		},
	}
}

func (f *fakeCatalog) ListDepartments(_ context.Context) ([]model.Department, error) {
	return f.departments, nil
}

func (f *fakeCatalog) ListServices(_ context.Context, departmentID uint64) ([]model.GovService, error) {
	var out []model.GovService
	for _, s := range f.services {
		if s.DepartmentID == departmentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetService(_ context.Context, id uint64) (model.GovService, error) {
	s, ok := f.services[id]
	if !ok {
		return model.GovService{}, repository.ErrNotFound
	}
	return s, nil
}

type fakeAppointments struct {
	seq  uint64
	byID map[uint64]model.Appointment
}

var _ repository.AppointmentStore = (*fakeAppointments)(nil)

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{byID: map[uint64]model.Appointment{}}
}

func (f *fakeAppointments) Book(_ context.Context, a *model.Appointment, capacity uint32) error {
	var taken uint32
	for _, ex := range f.byID {
		if ex.ServiceID == a.ServiceID && ex.SlotStartsAt.Equal(a.SlotStartsAt) && ex.Status == model.AppointmentConfirmed {
			taken++
		}
	}
	if taken >= capacity {
		return repository.ErrSlotFull
	}
	f.seq++
	a.ID = f.seq
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAppointments) ListForUser(_ context.Context, userID uint64) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.byID {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointments) CountForUserService(_ context.Context, userID, serviceID uint64) (int64, error) {
	var n int64
	for _, a := range f.byID {
		if a.UserID == userID && a.ServiceID == serviceID && a.Status == model.AppointmentConfirmed {
			n++
		}
	}
	return n, nil
}

func (f *fakeAppointments) Cancel(_ context.Context, id, userID uint64) error {
	a, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.UserID != userID {
		return repository.ErrForbidden
	}
	a.Status = model.AppointmentCancelled
	f.byID[id] = a
	return nil
}

type fakeEvents struct {
	auth         []queue.AuthEvent
	appointments []queue.AppointmentBookedEvent
}

var _ handler.EventPublisher = (*fakeEvents)(nil)

func (f *fakeEvents) PublishAuthEvent(_ context.Context, ev queue.AuthEvent) error {
	f.auth = append(f.auth, ev)
	return nil
}

func (f *fakeEvents) PublishAppointmentBooked(_ context.Context, ev queue.AppointmentBookedEvent) error {
	f.appointments = append(f.appointments, ev)
	return nil
}

type testApp struct {
	e            *echo.Echo
	users        *fakeUsers
	revocations  *fakeRevocations
	catalog      *fakeCatalog
	appointments *fakeAppointments
	events       *fakeEvents
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.Config{
		Env:            "test",
		JWTSecret:      "test-secret",
		JWTIssuer:      "ceylon-smart-citizen",
		JWTAudience:    "smart-citizen-portal",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4, // keep tests fast
	}

	app := &testApp{
		e:            echo.New(),
		users:        newFakeUsers(),
		revocations:  newFakeRevocations(),
		catalog:      newFakeCatalog(),
		appointments: newFakeAppointments(),
		events:       &fakeEvents{},
	}

	logger := zap.NewNop()
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	verifier := token.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	auth := middleware.NewAuthenticator(verifier, app.users, app.revocations, logger)

	a := handler.NewAuthHandler(cfg, app.users, app.revocations, issuer, verifier, app.events, logger)
	b := handler.NewBookingHandler(app.catalog, app.appointments, app.events, logger)

	router.Register(app.e, a, b, auth, config.RateLimitConfig{Enabled: false}, nil, logger)
	return app
}

// do drives one request through the real router and returns the recorder.
func (app *testApp) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// register creates a citizen through the real endpoint and returns the
// issued token pair.
func (app *testApp) register(t *testing.T, email, password string) token.Pair {
	t.Helper()
	rec := app.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email":     email,
		"password":  password,
		"firstName": "Nimal",
		"lastName":  "Perera",
		"nicNumber": "NIC-" + strings.ToUpper(email),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return pairFromBody(t, rec)
}

func (app *testApp) login(t *testing.T, email, password string) token.Pair {
	t.Helper()
	rec := app.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return pairFromBody(t, rec)
}

func pairFromBody(t *testing.T, rec *httptest.ResponseRecorder) token.Pair {
	t.Helper()
	var resp struct {
		token.Pair
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	return resp.Pair
}
