package models

import "time"

// PresignToken describes an issued presign credential. The token string
// itself is returned to the caller once and never stored.
type PresignToken struct {
	Token        string    `json:"token"`
	CredentialID string    `json:"credentialId,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SigningTwoFactorToken is the stored form of a one-time signing code.
// Only a salted hash of the code is kept.
type SigningTwoFactorToken struct {
	ID           string     `json:"id"`
	EnvelopeID   string     `json:"envelopeId"`
	RecipientID  string     `json:"recipientId"`
	CredentialID string     `json:"credentialId,omitempty"`
	TokenHash    []byte     `json:"-"`
	Salt         []byte     `json:"-"`
	Attempts     int        `json:"attempts"`
	AttemptLimit int        `json:"attemptLimit"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Exhausted reports whether the failure budget has been used up.
func (t *SigningTwoFactorToken) Exhausted() bool {
	return t.Attempts >= t.AttemptLimit
}

// ApiCredential is a long-lived API token. Only the sha256 of the token is stored.
type ApiCredential struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"userId,omitempty"`
	TeamID    *string    `json:"teamId,omitempty"`
	TokenHash string     `json:"-"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID       string
	TeamID       *string
	CredentialID string
	// Scope, when set, restricts the principal to a single envelope.
	Scope string
	// ViaPresign marks a principal authenticated with a presign token.
	ViaPresign bool
}

// OwnerKey mirrors Envelope.OwnerKey for quota accounting.
func (p Principal) OwnerKey() string {
	if p.TeamID != nil && *p.TeamID != "" {
		return "team:" + *p.TeamID
	}
	return "user:" + p.UserID
}

// CanSee reports whether the principal owns e directly or through its team.
// A team-scoped principal only sees that team's envelopes.
func (p Principal) CanSee(e *Envelope) bool {
	if p.TeamID != nil {
		return e.TeamID != nil && *e.TeamID == *p.TeamID
	}
	return e.TeamID == nil && e.UserID == p.UserID
}
