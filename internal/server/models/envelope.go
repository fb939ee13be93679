// Package models defines server-side data models persisted in the database.
package models

import "time"

// EnvelopeType distinguishes signable documents from reusable templates.
type EnvelopeType string

const (
	EnvelopeTypeDocument EnvelopeType = "DOCUMENT"
	EnvelopeTypeTemplate EnvelopeType = "TEMPLATE"
)

// Valid reports whether t is a known envelope type.
func (t EnvelopeType) Valid() bool {
	return t == EnvelopeTypeDocument || t == EnvelopeTypeTemplate
}

// EnvelopeStatus is the lifecycle state of an envelope.
type EnvelopeStatus string

const (
	StatusDraft     EnvelopeStatus = "DRAFT"
	StatusPending   EnvelopeStatus = "PENDING"
	StatusCompleted EnvelopeStatus = "COMPLETED"
	StatusCancelled EnvelopeStatus = "CANCELLED"
	StatusDeleted   EnvelopeStatus = "DELETED"
)

// transitions lists the forward moves allowed from each status. Deletion is
// handled separately because it is reachable from every live status.
var transitions = map[EnvelopeStatus][]EnvelopeStatus{
	StatusDraft:   {StatusPending, StatusCancelled},
	StatusPending: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an envelope may move from one status to another.
func CanTransition(from, to EnvelopeStatus) bool {
	if to == StatusDeleted {
		return from != StatusDeleted
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Visibility controls which team members can see an envelope.
type Visibility string

const (
	VisibilityEveryone        Visibility = "EVERYONE"
	VisibilityManagerAndAbove Visibility = "MANAGER_AND_ABOVE"
	VisibilityAdmin           Visibility = "ADMIN"
)

// Valid reports whether v is a known visibility policy.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityEveryone, VisibilityManagerAndAbove, VisibilityAdmin:
		return true
	}
	return false
}

// Envelope is the unit of work: a document to be signed or a template.
type Envelope struct {
	ID          string         `json:"id"`
	SecondaryID string         `json:"secondaryId"`
	LegacyID    int64          `json:"legacyId"`
	Type        EnvelopeType   `json:"type"`
	Title       string         `json:"title"`
	ExternalID  *string        `json:"externalId,omitempty"`
	Visibility  Visibility     `json:"visibility"`
	Status      EnvelopeStatus `json:"status"`
	UserID      string         `json:"userId,omitempty"`
	TeamID      *string        `json:"teamId,omitempty"`
	FolderID    *string        `json:"folderId,omitempty"`
	AuthOptions AuthOptions    `json:"authOptions"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	DeletedAt   *time.Time     `json:"deletedAt,omitempty"`
}

// OwnerKey is the principal quota is accounted against: the team when the
// envelope belongs to one, otherwise the owning user.
func (e *Envelope) OwnerKey() string {
	if e.TeamID != nil && *e.TeamID != "" {
		return "team:" + *e.TeamID
	}
	return "user:" + e.UserID
}

// EnvelopeItem is one content unit (an uploaded PDF) inside an envelope.
type EnvelopeItem struct {
	ID             string `json:"id"`
	EnvelopeID     string `json:"envelopeId"`
	Title          string `json:"title"`
	Order          int    `json:"order"`
	DocumentDataID string `json:"documentDataId"`
}

// Attachment is an auxiliary link shown alongside the envelope.
type Attachment struct {
	ID         string `json:"id"`
	EnvelopeID string `json:"envelopeId"`
	Label      string `json:"label"`
	URL        string `json:"url"`
	Type       string `json:"type"`
}

// AttachmentTypeLink is the only attachment type currently supported.
const AttachmentTypeLink = "LINK"

// EnvelopeGraph is an envelope together with everything it owns.
type EnvelopeGraph struct {
	Envelope    *Envelope       `json:"envelope"`
	Meta        *DocumentMeta   `json:"meta,omitempty"`
	Items       []*EnvelopeItem `json:"items"`
	Recipients  []*Recipient    `json:"recipients"`
	Fields      []*Field        `json:"fields"`
	Attachments []*Attachment   `json:"attachments"`
}
