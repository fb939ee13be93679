// Package guard decides whether an envelope's item structure may still change.
package guard

import "github.com/dmitrijs2005/envelopekeeper/internal/server/models"

// CanItemsBeModified reports whether items may be added to or removed from
// the envelope. Structure is frozen once the envelope has left DRAFT or any
// recipient has been notified, has opened it or has signed or rejected it.
// Item title and order stay editable regardless.
func CanItemsBeModified(env *models.Envelope, recipients []*models.Recipient) bool {
	if env == nil || env.Status != models.StatusDraft || env.DeletedAt != nil {
		return false
	}
	for _, r := range recipients {
		if r.HasActed() {
			return false
		}
	}
	return true
}

// CanEnvelopeBeUpdated reports whether envelope metadata may still be patched.
func CanEnvelopeBeUpdated(env *models.Envelope) bool {
	if env == nil || env.DeletedAt != nil {
		return false
	}
	switch env.Status {
	case models.StatusCompleted, models.StatusCancelled, models.StatusDeleted:
		return false
	}
	return true
}
