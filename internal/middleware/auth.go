package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ceylon-smart-citizen/auth-service/internal/model"
	"github.com/ceylon-smart-citizen/auth-service/internal/repository"
	"github.com/ceylon-smart-citizen/auth-service/internal/token"
)

// Rejection codes surfaced to HTTP callers alongside a 401.
const (
	CodeTokenRequired       = "TOKEN_REQUIRED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInvalidTokenType    = "INVALID_TOKEN_TYPE"
	CodeTokenBlacklisted    = "TOKEN_BLACKLISTED"
	CodeGloballyInvalidated = "TOKEN_GLOBALLY_INVALIDATED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeAccountDeactivated  = "ACCOUNT_DEACTIVATED"
)

// Context keys populated after successful authentication.
const (
	ctxIdentity = "identity"
	ctxClaims   = "claims"
	ctxRawToken = "raw_token"
	ctxUserID   = "user_id"
	ctxRole     = "role"
)

// Authenticator decides whether an inbound request carries a valid session.
// It layers the two revocation checks and a credential-store lookup on top
// of pure token verification.
type Authenticator struct {
	Verifier    *token.Verifier
	Users       repository.UserStore
	Revocations repository.RevocationStore
	Logger      *zap.Logger
}

// NewAuthenticator wires an Authenticator. Logger must be non-nil: the
// fail-open branch depends on it.
func NewAuthenticator(v *token.Verifier, users repository.UserStore, rev repository.RevocationStore, logger *zap.Logger) *Authenticator {
	return &Authenticator{Verifier: v, Users: users, Revocations: rev, Logger: logger}
}

type rejection struct {
	code    string
	message string
}

// authenticate runs the full per-request pipeline and returns either the
// claims of an authenticated session or a terminal rejection.
//
//  1. extract bearer token          -> TOKEN_REQUIRED
//  2. verify signature/expiry/iss   -> TOKEN_EXPIRED | INVALID_TOKEN
//  3. require type=access           -> INVALID_TOKEN_TYPE
//  4. blacklist check               -> TOKEN_BLACKLISTED (fails open on store error)
//  5. global-logout watermark       -> TOKEN_GLOBALLY_INVALIDATED (fails open on store error)
//  6. credential store + active     -> USER_NOT_FOUND | ACCOUNT_DEACTIVATED
func (a *Authenticator) authenticate(c echo.Context) (*token.Claims, string, *rejection) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, "", &rejection{CodeTokenRequired, "missing bearer token"}
	}
	raw := strings.TrimPrefix(auth, "Bearer ")

	claims, err := a.Verifier.Verify(raw)
	if err != nil {
		if err == token.ErrTokenExpired {
			return nil, "", &rejection{CodeTokenExpired, "token expired"}
		}
		return nil, "", &rejection{CodeInvalidToken, "invalid token"}
	}

	// A refresh token must never work as a bearer credential.
	if claims.TokenType != token.TypeAccess {
		return nil, "", &rejection{CodeInvalidTokenType, "wrong token type"}
	}

	ctx := c.Request().Context()

	// Both revocation checks fail OPEN on a backing-store error: a transient
	// registry outage must not turn into a full login outage. The tradeoff
	// is deliberate and the warn log below is mandatory.
	blacklisted, err := a.Revocations.IsBlacklisted(ctx, token.Hash(raw))
	if err != nil {
		a.Logger.Warn("revocation registry unavailable, blacklist check failed open",
			zap.Uint64("user_id", claims.UserID), zap.Error(err))
		blacklisted = false
	}
	if blacklisted {
		return nil, "", &rejection{CodeTokenBlacklisted, "token revoked"}
	}

	wm, err := a.Revocations.Watermark(ctx, claims.UserID)
	if err != nil {
		a.Logger.Warn("revocation registry unavailable, watermark check failed open",
			zap.Uint64("user_id", claims.UserID), zap.Error(err))
		wm = nil
	}
	// iat has second precision, the watermark has microsecond precision;
	// truncate so a token minted in the same second as the bump survives.
	if wm != nil && claims.IssuedAt != nil && wm.Truncate(time.Second).After(claims.IssuedAt.Time) {
		return nil, "", &rejection{CodeGloballyInvalidated, "session invalidated"}
	}

	// Unlike the revocation checks, a credential-store failure rejects:
	// granting access without confirming account status is unacceptable.
	u, err := a.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, "", &rejection{CodeUserNotFound, "user not found"}
	}
	if !u.IsActive {
		return nil, "", &rejection{CodeAccountDeactivated, "account deactivated"}
	}

	return claims, raw, nil
}

// RequireAuth returns middleware that rejects unauthenticated requests with
// 401 and otherwise exposes the token's identity snapshot (not a fresh DB
// row) plus the raw token to downstream handlers.
func (a *Authenticator) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, raw, rej := a.authenticate(c)
			if rej != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": rej.message, "code": rej.code})
			}
			setSession(c, claims, raw)
			return next(c)
		}
	}
}

// OptionalAuth runs the same pipeline but proceeds as anonymous on any
// failure. Handlers use Identity() to tell the two cases apart.
func (a *Authenticator) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if claims, raw, rej := a.authenticate(c); rej == nil {
				setSession(c, claims, raw)
			}
			return next(c)
		}
	}
}

func setSession(c echo.Context, claims *token.Claims, raw string) {
	c.Set(ctxIdentity, claims.Snapshot())
	c.Set(ctxClaims, claims)
	c.Set(ctxRawToken, raw)
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxRole, claims.Role)
}

// Identity returns the authenticated caller's identity snapshot, or false
// when the request is anonymous.
func Identity(c echo.Context) (model.IdentitySnapshot, bool) {
	snap, ok := c.Get(ctxIdentity).(model.IdentitySnapshot)
	return snap, ok
}

// SessionClaims returns the verified claims of the presented access token.
func SessionClaims(c echo.Context) (*token.Claims, bool) {
	claims, ok := c.Get(ctxClaims).(*token.Claims)
	return claims, ok
}

// RawToken returns the bearer token exactly as presented, for handlers that
// need to revoke it (logout).
func RawToken(c echo.Context) string {
	raw, _ := c.Get(ctxRawToken).(string)
	return raw
}
