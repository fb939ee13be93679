package models

import (
	"fmt"
	"time"
)

// RecipientRole is the closed set of parts a recipient can play.
type RecipientRole string

const (
	RoleSigner    RecipientRole = "SIGNER"
	RoleViewer    RecipientRole = "VIEWER"
	RoleApprover  RecipientRole = "APPROVER"
	RoleCC        RecipientRole = "CC"
	RoleAssistant RecipientRole = "ASSISTANT"
)

// AllRoles enumerates every role. Each behavior table below must cover it.
var AllRoles = []RecipientRole{RoleSigner, RoleViewer, RoleApprover, RoleCC, RoleAssistant}

var actionVerbs = map[RecipientRole]string{
	RoleSigner:    "Sign",
	RoleViewer:    "View",
	RoleApprover:  "Approve",
	RoleCC:        "Receive a copy",
	RoleAssistant: "Assist",
}

var requiresAction = map[RecipientRole]bool{
	RoleSigner:    true,
	RoleViewer:    true,
	RoleApprover:  true,
	RoleCC:        false,
	RoleAssistant: true,
}

var canHaveFields = map[RecipientRole]bool{
	RoleSigner:    true,
	RoleViewer:    false,
	RoleApprover:  true,
	RoleCC:        false,
	RoleAssistant: true,
}

// CheckRoleTables fails if any role lacks an entry in a behavior table.
// The server refuses to start when it returns an error.
func CheckRoleTables() error {
	tables := map[string]func(RecipientRole) bool{
		"actionVerbs":    func(r RecipientRole) bool { _, ok := actionVerbs[r]; return ok },
		"requiresAction": func(r RecipientRole) bool { _, ok := requiresAction[r]; return ok },
		"canHaveFields":  func(r RecipientRole) bool { _, ok := canHaveFields[r]; return ok },
	}
	for name, has := range tables {
		for _, r := range AllRoles {
			if !has(r) {
				return fmt.Errorf("role %s missing from %s", r, name)
			}
		}
	}
	return nil
}

// Valid reports whether r is one of AllRoles.
func (r RecipientRole) Valid() bool {
	_, ok := actionVerbs[r]
	return ok
}

// ActionVerb is the call to action shown to a recipient of this role.
func (r RecipientRole) ActionVerb() string {
	return actionVerbs[r]
}

// RequiresAction reports whether the envelope waits on this role to complete.
func (r RecipientRole) RequiresAction() bool {
	return requiresAction[r]
}

// CanHaveFields reports whether fields may be assigned to this role.
func (r RecipientRole) CanHaveFields() bool {
	return canHaveFields[r]
}

type SendStatus string

const (
	SendStatusNotSent SendStatus = "NOT_SENT"
	SendStatusSent    SendStatus = "SENT"
)

type SigningStatus string

const (
	SigningStatusNotSigned SigningStatus = "NOT_SIGNED"
	SigningStatusSigned    SigningStatus = "SIGNED"
	SigningStatusRejected  SigningStatus = "REJECTED"
)

type ReadStatus string

const (
	ReadStatusNotOpened ReadStatus = "NOT_OPENED"
	ReadStatusOpened    ReadStatus = "OPENED"
)

// Recipient is a party who must act on (or merely receive) an envelope.
type Recipient struct {
	ID            string        `json:"id"`
	EnvelopeID    string        `json:"envelopeId"`
	Email         string        `json:"email"`
	Name          string        `json:"name"`
	Role          RecipientRole `json:"role"`
	SigningOrder  *int          `json:"signingOrder,omitempty"`
	AuthOptions   AuthOptions   `json:"authOptions"`
	SendStatus    SendStatus    `json:"sendStatus"`
	SigningStatus SigningStatus `json:"signingStatus"`
	ReadStatus    ReadStatus    `json:"readStatus"`
	SignedAt      *time.Time    `json:"signedAt,omitempty"`

	// ClientID is the caller's correlation token for a recipient created in
	// the current call. It is never persisted.
	ClientID string `json:"clientId,omitempty"`
}

// HasActed reports whether the recipient has been bound to the envelope's
// content by a notification, a recorded read, or a signing decision.
func (r *Recipient) HasActed() bool {
	return r.SendStatus == SendStatusSent ||
		r.ReadStatus == ReadStatusOpened ||
		r.SigningStatus != SigningStatusNotSigned
}

// Removable reports whether the recipient may still be deleted from the
// envelope without breaking in-flight signing state.
func (r *Recipient) Removable() bool {
	return r.SendStatus != SendStatusSent && r.SigningStatus == SigningStatusNotSigned
}

// Finished reports whether the recipient has recorded a signing decision.
// Finished recipients are history: a recipient set-replace leaves them alone.
func (r *Recipient) Finished() bool {
	return r.SigningStatus != SigningStatusNotSigned
}
