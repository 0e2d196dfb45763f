// Package penalty turns overdue leaves into disciplinary actions and manages
// their lifecycle: review, cancellation, payroll hand-off and suspension lifts.
package penalty

import (
	"sort"

	"github.com/warp/staffops/generic"
)

// =============================================================================
// POLICY TABLE
// =============================================================================

// PolicyTable is the set of active delay tiers, ordered by threshold.
type PolicyTable struct {
	tiers []generic.DelayPenaltyPolicy
}

// NewPolicyTable keeps only active policies.
func NewPolicyTable(policies []generic.DelayPenaltyPolicy) PolicyTable {
	var tiers []generic.DelayPenaltyPolicy
	for _, p := range policies {
		if p.IsActive {
			tiers = append(tiers, p)
		}
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].DelayDaysThreshold != tiers[j].DelayDaysThreshold {
			return tiers[i].DelayDaysThreshold < tiers[j].DelayDaysThreshold
		}
		return tiers[i].ID < tiers[j].ID
	})
	return PolicyTable{tiers: tiers}
}

// Match returns the tier with the largest threshold <= delayDays.
// On equal thresholds the lowest ID wins.
func (t PolicyTable) Match(delayDays int) (generic.DelayPenaltyPolicy, bool) {
	var (
		best  generic.DelayPenaltyPolicy
		found bool
	)
	for _, p := range t.tiers {
		if p.DelayDaysThreshold > delayDays {
			break
		}
		if !found || p.DelayDaysThreshold > best.DelayDaysThreshold {
			best, found = p, true
		}
	}
	return best, found
}

func (t PolicyTable) Tiers() []generic.DelayPenaltyPolicy {
	return append([]generic.DelayPenaltyPolicy(nil), t.tiers...)
}

func (t PolicyTable) Len() int { return len(t.tiers) }
