package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ceylon-smart-citizen/auth-service/internal/config"
	"github.com/ceylon-smart-citizen/auth-service/internal/middleware"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
	"github.com/ceylon-smart-citizen/auth-service/internal/queue"
	"github.com/ceylon-smart-citizen/auth-service/internal/repository"
	"github.com/ceylon-smart-citizen/auth-service/internal/token"
	"github.com/ceylon-smart-citizen/auth-service/internal/utils"
)

// EventPublisher pushes domain events to the notification pipeline.
// Implemented by *queue.Publisher.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, ev queue.AuthEvent) error
	PublishAppointmentBooked(ctx context.Context, ev queue.AppointmentBookedEvent) error
}

// AuthHandler bundles dependencies for the account and session endpoints.
type AuthHandler struct {
	Cfg         config.Config
	Users       repository.UserStore
	Revocations repository.RevocationStore
	Issuer      *token.Issuer
	Verifier    *token.Verifier
	Events      EventPublisher
	Logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(cfg config.Config, users repository.UserStore, rev repository.RevocationStore, issuer *token.Issuer, verifier *token.Verifier, events EventPublisher, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		Cfg:         cfg,
		Users:       users,
		Revocations: rev,
		Issuer:      issuer,
		Verifier:    verifier,
		Events:      events,
		Logger:      logger,
	}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NICNumber string `json:"nicNumber"`
	Phone     string `json:"phone"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userPart struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NICNumber string `json:"nicNumber"`
	Role      string `json:"role"`
}

// authResp is the login/registration/refresh response:
// {accessToken, refreshToken, tokenType, expiresIn} plus the user echo.
type authResp struct {
	token.Pair
	User userPart `json:"user"`
}

func newAuthResp(pair token.Pair, snap model.IdentitySnapshot) authResp {
	return authResp{
		Pair: pair,
		User: userPart{
			ID:        snap.ID,
			Email:     snap.Email,
			FirstName: snap.FirstName,
			LastName:  snap.LastName,
			NICNumber: snap.NICNumber,
			Role:      snap.Role,
		},
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// Register creates a citizen account and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.NICNumber = strings.ToUpper(strings.TrimSpace(req.NICNumber))
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" || req.NICNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, password, firstName, lastName and nicNumber are required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	u := model.User{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		NICNumber: req.NICNumber,
		Phone:     strings.TrimSpace(req.Phone),
		Role:      model.RoleCitizen,
	}
	uid, err := h.Users.Create(ctx, &u, hash)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		case errors.Is(err, repository.ErrNICExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "nic number already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	u.ID = uid

	pair, err := h.Issuer.IssuePair(u.Snapshot())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	// Best effort: a broker outage must not fail the registration.
	_ = h.Events.PublishAuthEvent(ctx, queue.AuthEvent{
		Kind:       queue.EventUserRegistered,
		UserID:     uid,
		Email:      u.Email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, newAuthResp(pair, u.Snapshot()))
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account deactivated", "code": middleware.CodeAccountDeactivated})
	}

	pair, err := h.Issuer.IssuePair(u.Snapshot())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, newAuthResp(pair, u.Snapshot()))
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is NOT consumed: pairs issued earlier keep working until they expire
// or are revoked. Rotation is an open gap inherited from the original
// design, kept intentionally.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}
	raw := strings.TrimSpace(req.RefreshToken)

	claims, err := h.Verifier.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token expired", "code": middleware.CodeTokenExpired})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": middleware.CodeInvalidToken})
	}
	// An access token cannot be exchanged for a new pair.
	if claims.TokenType != token.TypeRefresh {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "wrong token type", "code": middleware.CodeInvalidTokenType})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	// Same revocation rules as protected requests, including failing open
	// on a registry outage.
	blacklisted, err := h.Revocations.IsBlacklisted(ctx, token.Hash(raw))
	if err != nil {
		h.Logger.Warn("revocation registry unavailable, blacklist check failed open",
			zap.Uint64("user_id", claims.UserID), zap.Error(err))
		blacklisted = false
	}
	if blacklisted {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token revoked", "code": middleware.CodeTokenBlacklisted})
	}
	wm, err := h.Revocations.Watermark(ctx, claims.UserID)
	if err != nil {
		h.Logger.Warn("revocation registry unavailable, watermark check failed open",
			zap.Uint64("user_id", claims.UserID), zap.Error(err))
		wm = nil
	}
	if wm != nil && claims.IssuedAt != nil && wm.Truncate(time.Second).After(claims.IssuedAt.Time) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session invalidated", "code": middleware.CodeGloballyInvalidated})
	}

	u, err := h.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found", "code": middleware.CodeUserNotFound})
	}
	if !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account deactivated", "code": middleware.CodeAccountDeactivated})
	}

	pair, err := h.Issuer.IssuePair(u.Snapshot())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, newAuthResp(pair, u.Snapshot()))
}

// Logout revokes the presented access token by blacklisting its hash until
// its natural expiry. If the body carries the session's refresh token, that
// one is blacklisted too. Protected route.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := middleware.SessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	raw := middleware.RawToken(c)

	ctx, cancel := reqCtx(c)
	defer cancel()

	exp := time.Now().UTC().Add(time.Duration(h.Cfg.AccessTTLMin) * time.Minute)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := h.Revocations.Blacklist(ctx, token.Hash(raw), claims.UserID, exp, "logout"); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}

	var req refreshReq
	_ = c.Bind(&req)
	if rt := strings.TrimSpace(req.RefreshToken); rt != "" {
		// Only blacklist a verifiable refresh token that belongs to the
		// same user; anything else is silently ignored.
		if rc, err := h.Verifier.Verify(rt); err == nil &&
			rc.TokenType == token.TypeRefresh && rc.UserID == claims.UserID && rc.ExpiresAt != nil {
			if err := h.Revocations.Blacklist(ctx, token.Hash(rt), rc.UserID, rc.ExpiresAt.Time, "logout"); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
			}
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// LogoutAll bumps the caller's global-logout watermark, invalidating every
// token issued before this moment without enumerating them. Protected route.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Revocations.BumpWatermark(ctx, snap.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	_ = h.Events.PublishAuthEvent(ctx, queue.AuthEvent{
		Kind:       queue.EventSessionsRevoked,
		UserID:     snap.ID,
		Email:      snap.Email,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return c.NoContent(http.StatusNoContent)
}

// Me returns the identity snapshot of the authenticated caller, straight
// from the token.
func (h *AuthHandler) Me(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, snap)
}

// ChangePassword verifies the current password, stores the new hash and
// bumps the watermark so every open session must re-authenticate.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "currentPassword and newPassword required"})
	}
	if len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, snap.ID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found", "code": middleware.CodeUserNotFound})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}
	if err := h.Users.UpdatePassword(ctx, snap.ID, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}
	if err := h.Revocations.BumpWatermark(ctx, snap.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password update failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Deactivate flips the account inactive and bumps the watermark. The row is
// kept; nothing here hard-deletes users.
func (h *AuthHandler) Deactivate(c echo.Context) error {
	snap, ok := middleware.Identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetActive(ctx, snap.ID, false); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}
	if err := h.Revocations.BumpWatermark(ctx, snap.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
