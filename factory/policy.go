/*
Package factory converts penalty policy files into DelayPenaltyPolicy rows.

PURPOSE:
  The tier table is administered outside the engine. HR keeps it in a YAML
  (or JSON, which YAML accepts) file; the factory validates it and seeds the
  policy store at startup.

FILE SCHEMA:
  policies:
    - id: delay-3d
      name: Minor delay
      delay_days_threshold: 3
      penalty_type: DEDUCTION
      deduction_days: 1
    - id: delay-10d
      name: Severe delay
      delay_days_threshold: 10
      penalty_type: SUSPENSION
      suspension_days: 5
      active: true          # optional, default true

RULES:
  - delay_days_threshold >= 1
  - DEDUCTION needs deduction_days >= 1, SUSPENSION needs suspension_days >= 1
  - ids are unique; active thresholds are unique (tier selection must be
    unambiguous)
  - id defaults to "delay-<threshold>d"

USAGE:
  f := factory.NewPolicyFactory()
  policies, err := f.LoadFile("policies.yml")
  err = f.Seed(ctx, store, policies, time.Now())

SEE ALSO:
  - penalty/policies.go: tier matching
*/
package factory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/warp/staffops/generic"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// PolicyFile is the top-level document.
type PolicyFile struct {
	Policies []PolicyDef `yaml:"policies" json:"policies"`
}

// PolicyDef is one tier as written in the file.
type PolicyDef struct {
	ID                 string `yaml:"id" json:"id"`
	Name               string `yaml:"name" json:"name"`
	DelayDaysThreshold int    `yaml:"delay_days_threshold" json:"delay_days_threshold"`
	PenaltyType        string `yaml:"penalty_type" json:"penalty_type"`
	DeductionDays      int    `yaml:"deduction_days,omitempty" json:"deduction_days,omitempty"`
	SuspensionDays     int    `yaml:"suspension_days,omitempty" json:"suspension_days,omitempty"`
	Active             *bool  `yaml:"active,omitempty" json:"active,omitempty"`
}

// DefaultPoliciesYAML is the table used when no policy file is configured.
const DefaultPoliciesYAML = `policies:
  - id: delay-3d
    name: Minor delay
    delay_days_threshold: 3
    penalty_type: DEDUCTION
    deduction_days: 1
  - id: delay-7d
    name: Serious delay
    delay_days_threshold: 7
    penalty_type: DEDUCTION
    deduction_days: 3
  - id: delay-10d
    name: Severe delay
    delay_days_threshold: 10
    penalty_type: SUSPENSION
    suspension_days: 5
`

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory parses and validates policy files.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// LoadFile reads and parses a policy file.
func (f *PolicyFactory) LoadFile(path string) ([]generic.DelayPenaltyPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read policy file %s", path)
	}
	policies, err := f.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "policy file %s", path)
	}
	return policies, nil
}

// Default parses DefaultPoliciesYAML.
func (f *PolicyFactory) Default() []generic.DelayPenaltyPolicy {
	policies, err := f.Parse([]byte(DefaultPoliciesYAML))
	if err != nil {
		panic(err)
	}
	return policies
}

// Parse converts a YAML or JSON document into validated policies.
func (f *PolicyFactory) Parse(data []byte) ([]generic.DelayPenaltyPolicy, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, generic.Invalid("policies", "cannot parse: %v", err)
	}
	if len(file.Policies) == 0 {
		return nil, generic.Invalid("policies", "no policies defined")
	}

	policies := make([]generic.DelayPenaltyPolicy, 0, len(file.Policies))
	seenIDs := make(map[generic.PolicyID]bool)
	seenThresholds := make(map[int]generic.PolicyID)
	for i, def := range file.Policies {
		p, err := f.convert(def)
		if err != nil {
			return nil, errors.Wrapf(err, "policy #%d", i+1)
		}
		if seenIDs[p.ID] {
			return nil, generic.Invalid("id", "duplicate policy id %s", p.ID)
		}
		seenIDs[p.ID] = true
		if p.IsActive {
			if other, ok := seenThresholds[p.DelayDaysThreshold]; ok {
				return nil, generic.Invalid("delay_days_threshold",
					"%s and %s are both active at %d days", other, p.ID, p.DelayDaysThreshold)
			}
			seenThresholds[p.DelayDaysThreshold] = p.ID
		}
		policies = append(policies, p)
	}
	return policies, nil
}

func (f *PolicyFactory) convert(def PolicyDef) (generic.DelayPenaltyPolicy, error) {
	if def.DelayDaysThreshold < 1 {
		return generic.DelayPenaltyPolicy{}, generic.Invalid("delay_days_threshold", "must be >= 1, got %d", def.DelayDaysThreshold)
	}

	pt := generic.PenaltyType(strings.ToUpper(strings.TrimSpace(def.PenaltyType)))
	switch pt {
	case generic.PenaltyDeduction:
		if def.DeductionDays < 1 {
			return generic.DelayPenaltyPolicy{}, generic.Invalid("deduction_days", "must be >= 1 for DEDUCTION, got %d", def.DeductionDays)
		}
	case generic.PenaltySuspension:
		if def.SuspensionDays < 1 {
			return generic.DelayPenaltyPolicy{}, generic.Invalid("suspension_days", "must be >= 1 for SUSPENSION, got %d", def.SuspensionDays)
		}
	default:
		return generic.DelayPenaltyPolicy{}, generic.Invalid("penalty_type", "unknown type %q", def.PenaltyType)
	}

	id := strings.TrimSpace(def.ID)
	if id == "" {
		id = fmt.Sprintf("delay-%dd", def.DelayDaysThreshold)
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = fmt.Sprintf("Delay of %d+ days", def.DelayDaysThreshold)
	}
	active := true
	if def.Active != nil {
		active = *def.Active
	}

	p := generic.DelayPenaltyPolicy{
		ID:                 generic.PolicyID(id),
		Name:               name,
		DelayDaysThreshold: def.DelayDaysThreshold,
		PenaltyType:        pt,
		IsActive:           active,
	}
	// Only the amount matching the type is kept.
	if pt == generic.PenaltyDeduction {
		p.DeductionDays = def.DeductionDays
	} else {
		p.SuspensionDays = def.SuspensionDays
	}
	return p, nil
}

// Seed upserts policies into the store, keeping CreatedAt of existing rows.
func (f *PolicyFactory) Seed(ctx context.Context, store generic.PolicyStore, policies []generic.DelayPenaltyPolicy, now time.Time) error {
	existing, err := store.ListPolicies(ctx, false)
	if err != nil {
		return errors.Wrap(err, "list policies")
	}
	created := make(map[generic.PolicyID]time.Time, len(existing))
	for _, p := range existing {
		created[p.ID] = p.CreatedAt
	}

	for _, p := range policies {
		p.CreatedAt = now
		if t, ok := created[p.ID]; ok {
			p.CreatedAt = t
		}
		p.UpdatedAt = now
		if err := store.SavePolicy(ctx, p); err != nil {
			return errors.Wrapf(err, "save policy %s", p.ID)
		}
	}
	return nil
}
