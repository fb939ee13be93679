// Package quota holds plan limits and the checks the builder and item
// mutations run before writing.
//
// Unit consumption itself happens in the quotas repository as a single
// conditional upsert inside the caller's transaction; this package only
// decides what the ceilings are and whether a proposed item count fits.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/timex"
)

// Unlimited disables the per-period unit ceiling.
const Unlimited = -1

// Limits are the plan ceilings for one owner.
type Limits struct {
	// UnitsPerPeriod is how many documents may be created per period, or Unlimited.
	UnitsPerPeriod int
	// MaxItemsPerEnvelope bounds the items of a single envelope; <=0 means no bound.
	MaxItemsPerEnvelope int
}

// PlanProvider resolves the limits of the plan a principal is on.
type PlanProvider interface {
	LimitsFor(ctx context.Context, p models.Principal) (Limits, error)
}

// StaticPlans gives every principal the same limits, with optional
// per-owner overrides keyed by Principal.OwnerKey.
type StaticPlans struct {
	Default   Limits
	Overrides map[string]Limits
}

func NewStaticPlans(def Limits) *StaticPlans {
	return &StaticPlans{Default: def, Overrides: map[string]Limits{}}
}

func (s *StaticPlans) LimitsFor(_ context.Context, p models.Principal) (Limits, error) {
	if l, ok := s.Overrides[p.OwnerKey()]; ok {
		return l, nil
	}
	return s.Default, nil
}

// Period returns the accounting period containing now.
func Period(now time.Time) time.Time {
	return timex.MonthStart(now)
}

// Counts reports whether envelopes of the given kind consume units.
// Templates are free.
func Counts(kind models.EnvelopeType) bool {
	return kind == models.EnvelopeTypeDocument
}

// CheckItemCount validates the item count that results from a change:
// existing minus deleted plus added.
func CheckItemCount(l Limits, existing, deleted, added int) error {
	result := existing - deleted + added
	if l.MaxItemsPerEnvelope > 0 && result > l.MaxItemsPerEnvelope {
		return fmt.Errorf("%w: envelope would hold %d items, plan allows %d", common.ErrItemLimitExceeded, result, l.MaxItemsPerEnvelope)
	}
	return nil
}

// Remaining returns the units still available given the amount used.
// It never returns less than zero; Unlimited passes through.
func Remaining(l Limits, used int) int {
	if l.UnitsPerPeriod < 0 {
		return Unlimited
	}
	if r := l.UnitsPerPeriod - used; r > 0 {
		return r
	}
	return 0
}
