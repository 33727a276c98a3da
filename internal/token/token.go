// Package token creates and validates the signed access/refresh token pairs
// used by the Ceylon Smart Citizen portal. Tokens are self-contained HS256
// JWTs carrying an identity snapshot plus a "type" discriminator, so a
// refresh token can never double as a bearer credential.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// Token type discriminators carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Verification failure kinds. Revocation is not checked here; that is
// layered on top by the session authenticator.
var (
	// ErrTokenExpired means the token was well-formed and correctly signed
	// but its exp has passed. Recoverable through the refresh flow.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed means the raw string is not a parsable JWT.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenUnverifiable covers bad signatures and issuer/audience
	// mismatches: tokens minted outside our trust domain.
	ErrTokenUnverifiable = errors.New("token unverifiable")
)

// Claims is the full claim set of a portal token: the identity snapshot for
// display purposes, the type discriminator and the registered claims.
type Claims struct {
	UserID    uint64 `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NICNumber string `json:"nicNumber"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Snapshot rebuilds the identity snapshot embedded in the claims.
func (c *Claims) Snapshot() model.IdentitySnapshot {
	return model.IdentitySnapshot{
		ID:        c.UserID,
		Email:     c.Email,
		Role:      c.Role,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		NICNumber: c.NICNumber,
	}
}

// Pair is the wire shape returned by login, registration and refresh.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Issuer signs access/refresh pairs. The signing secret and the
// issuer/audience identifiers are injected once at construction; nothing in
// this package reads the environment.
type Issuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer constructs an Issuer for the given trust domain.
func NewIssuer(secret, issuer, audience string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssuePair signs a fresh access/refresh pair for the given identity.
// Pure function of its input, the clock and the injected secret; no store
// round-trips and no side effects beyond signing.
func (i *Issuer) IssuePair(snap model.IdentitySnapshot) (Pair, error) {
	now := time.Now().UTC()

	access, err := i.sign(snap, TypeAccess, now, now.Add(i.accessTTL))
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(snap, TypeRefresh, now, now.Add(i.refreshTTL))
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessTTL / time.Second),
	}, nil
}

func (i *Issuer) sign(snap model.IdentitySnapshot, typ string, iat, exp time.Time) (string, error) {
	claims := Claims{
		UserID:    snap.ID,
		Email:     snap.Email,
		Role:      snap.Role,
		FirstName: snap.FirstName,
		LastName:  snap.LastName,
		NICNumber: snap.NICNumber,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti keeps two tokens minted within the same second
			// distinct, so blacklisting one never catches the other.
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Verifier validates token signature, expiry and issuer/audience claims.
type Verifier struct {
	secret   []byte
	parser   *jwt.Parser
	unsafe   *jwt.Parser
	issuer   string
	audience string
}

// NewVerifier constructs a Verifier bound to the same trust domain as the
// issuer the tokens came from.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
		unsafe:   jwt.NewParser(),
		issuer:   issuer,
		audience: audience,
	}
}

// Verify parses and validates a raw token, returning its claims. Failures
// collapse to one of the three sentinel kinds above.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	t, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenUnverifiable
		}
	}
	if !t.Valid {
		return nil, ErrTokenUnverifiable
	}
	return claims, nil
}

// DecodeUnverified parses a token WITHOUT checking its signature or expiry.
// It exists so callers that already trust the source can read claims such
// as exp (e.g. mirroring a token's natural expiry onto a blacklist entry).
// It must never be used to grant access.
func (v *Verifier) DecodeUnverified(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := v.unsafe.ParseUnverified(raw, claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// Hash returns the SHA-256 hex digest of a raw token. The revocation
// registry stores and compares digests only, never raw tokens.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
