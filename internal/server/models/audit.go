package models

import (
	"encoding/json"
	"time"
)

// AuditLogType names the kind of accepted mutation an entry records.
type AuditLogType string

const (
	AuditEnvelopeCreated     AuditLogType = "ENVELOPE_CREATED"
	AuditEnvelopeUpdated     AuditLogType = "ENVELOPE_UPDATED"
	AuditEnvelopeDistributed AuditLogType = "ENVELOPE_DISTRIBUTED"
	AuditEnvelopeCompleted   AuditLogType = "ENVELOPE_COMPLETED"
	AuditEnvelopeCancelled   AuditLogType = "ENVELOPE_CANCELLED"
	AuditEnvelopeDeleted     AuditLogType = "ENVELOPE_DELETED"
	AuditRecipientsSet       AuditLogType = "RECIPIENTS_SET"
	AuditRecipientAction     AuditLogType = "RECIPIENT_ACTION"
	AuditFieldsSet           AuditLogType = "FIELDS_SET"
	AuditItemsCreated        AuditLogType = "ITEMS_CREATED"
	AuditItemsUpdated        AuditLogType = "ITEMS_UPDATED"
	AuditItemDeleted         AuditLogType = "ITEM_DELETED"
	AuditTwoFactorIssued     AuditLogType = "TWO_FACTOR_ISSUED"
	AuditTwoFactorVerified   AuditLogType = "TWO_FACTOR_VERIFIED"
	AuditTwoFactorFailed     AuditLogType = "TWO_FACTOR_FAILED"
)

// AuditLogEntry is an append-only fact about one accepted mutation.
type AuditLogEntry struct {
	ID           string          `json:"id"`
	Type         AuditLogType    `json:"type"`
	EnvelopeID   string          `json:"envelopeId"`
	UserID       string          `json:"userId,omitempty"`
	CredentialID string          `json:"credentialId,omitempty"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}
