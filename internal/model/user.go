package model

import "time"

// Roles assigned to portal accounts. Citizens self-register; officer and
// admin accounts are provisioned out of band.
const (
	RoleCitizen = "CITIZEN"
	RoleOfficer = "OFFICER"
	RoleAdmin   = "ADMIN"
)

// User represents a citizen account as stored in the `users` table.
//
// Fields:
//  ID                 – primary key identifier of the user.
//  Email              – unique email address, stored lower-cased.
//  PasswordHash       – bcrypt hashed password.
//  FirstName          – given name, carried into the token identity snapshot.
//  LastName           – family name.
//  NICNumber          – unique national identity card number.
//  Phone              – contact number, informational only.
//  Role               – CITIZEN, OFFICER or ADMIN.
//  IsActive           – whether the account may authenticate.
//  TokenInvalidBefore – global-logout watermark: tokens issued before this
//                       instant are rejected. Nil when never bumped.
//  CreatedAt          – timestamp of creation.
//  UpdatedAt          – timestamp of last update.
type User struct {
	ID                 uint64     // users.id
	Email              string     // users.email
	PasswordHash       string     // users.password_hash
	FirstName          string     // users.first_name
	LastName           string     // users.last_name
	NICNumber          string     // users.nic_number
	Phone              string     // users.phone
	Role               string     // users.role
	IsActive           bool       // users.is_active
	TokenInvalidBefore *time.Time // users.token_invalid_before (nullable)
	CreatedAt          time.Time  // users.created_at
	UpdatedAt          time.Time  // users.updated_at
}

// Snapshot builds the identity snapshot that gets baked into issued tokens
// and handed to downstream handlers after authentication.
func (u User) Snapshot() IdentitySnapshot {
	return IdentitySnapshot{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		NICNumber: u.NICNumber,
	}
}

// IdentitySnapshot is the typed identity carried inside a token. It is the
// input of the token issuer and the output of the session authenticator, so
// handlers never need a fresh user row just to know who is calling.
type IdentitySnapshot struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NICNumber string `json:"nicNumber"`
}

// BlacklistEntry models a row in the `token_blacklist` table. One entry per
// individually revoked token; only the SHA-256 hex digest of the raw token
// is stored. ExpiresAt mirrors the token's own expiry so cleanup can drop
// rows that no longer matter.
//
// Fields:
//  ID        – primary key identifier.
//  TokenHash – SHA-256 hex digest of the raw token (unique).
//  UserID    – owner of the revoked token.
//  ExpiresAt – natural expiry of the revoked token.
//  Reason    – why it was revoked (e.g. "logout", "password_change").
//  CreatedAt – when the entry was written.
type BlacklistEntry struct {
	ID        uint64    // token_blacklist.id
	TokenHash string    // token_blacklist.token_hash
	UserID    uint64    // token_blacklist.user_id
	ExpiresAt time.Time // token_blacklist.expires_at
	Reason    string    // token_blacklist.reason
	CreatedAt time.Time // token_blacklist.created_at
}
