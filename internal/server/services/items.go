package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/guard"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/quota"
	"github.com/google/uuid"
)

// ItemPatch changes the title and/or order of an existing item.
type ItemPatch struct {
	ID    string  `json:"id"`
	Title *string `json:"title,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// requireStructuralChange runs the mutability guard against fresh state.
func (s *EnvelopeService) requireStructuralChange(ctx context.Context, tx dbx.DBTX, env *models.Envelope) error {
	recipients, err := s.repomanager.Recipients(tx).ListByEnvelope(ctx, env.ID)
	if err != nil {
		return err
	}
	if !guard.CanItemsBeModified(env, recipients) {
		return fmt.Errorf("%w: envelope %s", common.ErrItemNotEditable, env.ID)
	}
	return nil
}

// CreateItems appends items after the current last one. Inputs whose
// document data is already attached to the envelope are not added again.
func (s *EnvelopeService) CreateItems(ctx context.Context, p models.Principal, ref EnvelopeRef, input []CreateItemInput) ([]*models.EnvelopeItem, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: no items given", common.ErrInvalidRequest)
	}
	limits, err := s.plans.LimitsFor(ctx, p)
	if err != nil {
		return nil, err
	}

	var items []*models.EnvelopeItem
	err = s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if err := s.requireStructuralChange(ctx, tx, env); err != nil {
			return err
		}

		itemRepo := s.repomanager.Items(tx)
		items, err = itemRepo.ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}

		attached := map[string]bool{}
		next := 1
		for _, it := range items {
			attached[it.DocumentDataID] = true
			if it.Order >= next {
				next = it.Order + 1
			}
		}

		content := s.newContentIndex(tx)
		var added []*models.EnvelopeItem
		for _, in := range input {
			if in.DocumentDataID == "" {
				return fmt.Errorf("%w: item has no document data", common.ErrInvalidRequest)
			}
			if attached[in.DocumentDataID] {
				continue
			}
			if _, err := content.requirePDF(ctx, in.DocumentDataID, env); err != nil {
				return err
			}
			attached[in.DocumentDataID] = true
			added = append(added, &models.EnvelopeItem{
				ID:             uuid.NewString(),
				EnvelopeID:     env.ID,
				Title:          in.Title,
				Order:          next,
				DocumentDataID: in.DocumentDataID,
			})
			next++
		}
		if len(added) == 0 {
			return s.audit.Record(ctx, tx, p, models.AuditItemsCreated, env.ID, map[string]any{"added": 0})
		}
		if err := quota.CheckItemCount(limits, len(items), 0, len(added)); err != nil {
			return err
		}

		for _, it := range added {
			if err := itemRepo.Create(ctx, it); err != nil {
				return err
			}
		}
		items = append(items, added...)

		env.UpdatedAt = s.clock()
		if err := s.repomanager.Envelopes(tx).Update(ctx, env); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, p, models.AuditItemsCreated, env.ID, map[string]any{"added": len(added)})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItems changes titles and orders. This is metadata, so it is allowed
// after distribution, but orders must stay unique within the envelope.
func (s *EnvelopeService) UpdateItems(ctx context.Context, p models.Principal, ref EnvelopeRef, patches []ItemPatch) ([]*models.EnvelopeItem, error) {
	var items []*models.EnvelopeItem
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if !guard.CanEnvelopeBeUpdated(env) {
			return fmt.Errorf("%w: envelope is %s", common.ErrEnvelopeNotEditable, env.Status)
		}

		itemRepo := s.repomanager.Items(tx)
		items, err = itemRepo.ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		byID := itemsByID(items)

		changed := map[string]*models.EnvelopeItem{}
		for _, pt := range patches {
			it, ok := byID[pt.ID]
			if !ok {
				return fmt.Errorf("%w: item %s", common.ErrorNotFound, pt.ID)
			}
			if pt.Title != nil {
				if title := strings.TrimSpace(*pt.Title); title != it.Title {
					it.Title = title
					changed[it.ID] = it
				}
			}
			if pt.Order != nil && *pt.Order != it.Order {
				if *pt.Order < 1 {
					return fmt.Errorf("%w: order must be >= 1", common.ErrInvalidRequest)
				}
				it.Order = *pt.Order
				changed[it.ID] = it
			}
		}

		orders := map[int]string{}
		for _, it := range items {
			if other, dup := orders[it.Order]; dup {
				return fmt.Errorf("%w: items %s and %s share order %d", common.ErrInvalidRequest, other, it.ID, it.Order)
			}
			orders[it.Order] = it.ID
		}

		for _, it := range items {
			if changed[it.ID] == nil {
				continue
			}
			if err := itemRepo.Update(ctx, it); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, tx, p, models.AuditItemsUpdated, env.ID, map[string]any{"updated": len(changed)})
	})
	if err != nil {
		return nil, err
	}
	sortItems(items)
	return items, nil
}

func sortItems(items []*models.EnvelopeItem) {
	slices.SortFunc(items, func(a, b *models.EnvelopeItem) int { return cmp.Compare(a.Order, b.Order) })
}

// DeleteItem removes an item and every field placed on it. The last item of
// an envelope cannot be removed.
func (s *EnvelopeService) DeleteItem(ctx context.Context, p models.Principal, ref EnvelopeRef, itemID string) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if err := s.requireStructuralChange(ctx, tx, env); err != nil {
			return err
		}

		items, err := s.repomanager.Items(tx).ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		if _, ok := itemsByID(items)[itemID]; !ok {
			return fmt.Errorf("%w: item %s", common.ErrorNotFound, itemID)
		}
		if len(items) == 1 {
			return fmt.Errorf("%w: an envelope needs at least one item", common.ErrInvalidRequest)
		}

		removed, err := s.repomanager.Fields(tx).DeleteByItem(ctx, env.ID, itemID)
		if err != nil {
			return err
		}
		if err := s.repomanager.Items(tx).Delete(ctx, env.ID, itemID); err != nil {
			return err
		}
		env.UpdatedAt = s.clock()
		if err := s.repomanager.Envelopes(tx).Update(ctx, env); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, p, models.AuditItemDeleted, env.ID, map[string]any{
			"itemId":        itemID,
			"fieldsRemoved": removed,
		})
	})
}
