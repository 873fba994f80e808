/*
Package factory provides JSON/YAML to Go policy conversion.

PURPOSE:
  Converts interest policy documents into interest.Policy values. Lenders
  define rate templates in JSON (API, database) or YAML (presets file loaded
  at startup) and the factory builds validated policies from them.

JSON SCHEMA:
  {
    "id": "consumer-standard",
    "name": "Consumer 1.2%/month",
    "mode": "MONTHLY",
    "monthly_rate": "0.012",
    "anchor_day": 1,
    "grace_days": 0
  }

  {
    "id": "payday",
    "name": "Short term daily",
    "mode": "DAILY",
    "daily_rate": "0.0005"
  }

  Rates are fractions (0.012 = 1.2%) and may be given as JSON strings or
  numbers. Exactly the rate matching "mode" must be present.

YAML PRESETS:
  policies:
    - id: consumer-standard
      name: Consumer 1.2%/month
      mode: MONTHLY
      monthly_rate: "0.012"
    - id: payday
      mode: DAILY
      daily_rate: "0.0005"

USAGE:
  factory := NewPolicyFactory()

  policy, err := factory.ParsePolicy(jsonString)
  presets, err := factory.ParsePresetsYAML(fileBytes)

SEE ALSO:
  - interest/policy.go: Policy type definition
  - lending/service.go: policy templates
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/debt-ledger/interest"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Mode        string           `json:"mode"`
	MonthlyRate *decimal.Decimal `json:"monthly_rate,omitempty"`
	DailyRate   *decimal.Decimal `json:"daily_rate,omitempty"`
	AnchorDay   int              `json:"anchor_day,omitempty"` // MONTHLY only, default 1
	GraceDays   int              `json:"grace_days,omitempty"`
}

// policyYAML mirrors PolicyJSON. Rates are kept as text so that both quoted
// and bare YAML numbers parse without float rounding.
type policyYAML struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Mode        string `yaml:"mode"`
	MonthlyRate string `yaml:"monthly_rate"`
	DailyRate   string `yaml:"daily_rate"`
	AnchorDay   int    `yaml:"anchor_day"`
	GraceDays   int    `yaml:"grace_days"`
}

type presetsYAML struct {
	Policies []policyYAML `yaml:"policies"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to interest policies.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*interest.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParsePolicyYAML parses a single YAML policy document.
func (f *PolicyFactory) ParsePolicyYAML(data []byte) (*interest.Policy, error) {
	var py policyYAML
	if err := yaml.Unmarshal(data, &py); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	pj, err := py.toJSON()
	if err != nil {
		return nil, err
	}
	return f.FromJSON(pj)
}

// ParsePresetsYAML parses a presets file holding a list of policies.
// Every preset must carry an ID, and IDs must be unique.
func (f *PolicyFactory) ParsePresetsYAML(data []byte) ([]*interest.Policy, error) {
	var doc presetsYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse presets YAML: %w", err)
	}

	seen := make(map[string]bool, len(doc.Policies))
	policies := make([]*interest.Policy, 0, len(doc.Policies))
	for i, py := range doc.Policies {
		if py.ID == "" {
			return nil, fmt.Errorf("preset #%d: missing id", i+1)
		}
		if seen[py.ID] {
			return nil, fmt.Errorf("preset %q: duplicate id", py.ID)
		}
		seen[py.ID] = true

		pj, err := py.toJSON()
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", py.ID, err)
		}
		p, err := f.FromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", py.ID, err)
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// FromJSON converts PolicyJSON to a validated interest.Policy.
// A rate that does not match the declared mode is a *ConfigurationError.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*interest.Policy, error) {
	policy := &interest.Policy{
		ID:        interest.PolicyID(pj.ID),
		Name:      pj.Name,
		GraceDays: pj.GraceDays,
	}

	switch interest.Mode(strings.ToUpper(strings.TrimSpace(pj.Mode))) {
	case interest.ModeMonthly:
		if pj.MonthlyRate == nil {
			return nil, &interest.ConfigurationError{Field: "monthly_rate", Reason: "required for MONTHLY mode"}
		}
		if pj.DailyRate != nil {
			return nil, &interest.ConfigurationError{Field: "daily_rate", Reason: "not allowed for MONTHLY mode"}
		}
		anchor := pj.AnchorDay
		if anchor == 0 {
			anchor = 1
		}
		policy.Rate = interest.MonthlyRate{Rate: *pj.MonthlyRate, AnchorDay: anchor}

	case interest.ModeDaily:
		if pj.DailyRate == nil {
			return nil, &interest.ConfigurationError{Field: "daily_rate", Reason: "required for DAILY mode"}
		}
		if pj.MonthlyRate != nil {
			return nil, &interest.ConfigurationError{Field: "monthly_rate", Reason: "not allowed for DAILY mode"}
		}
		if pj.AnchorDay != 0 {
			return nil, &interest.ConfigurationError{Field: "anchor_day", Reason: "only meaningful for MONTHLY mode"}
		}
		policy.Rate = interest.DailyRate{Rate: *pj.DailyRate}

	default:
		return nil, &interest.ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", pj.Mode)}
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// ToJSON converts a Policy to PolicyJSON.
func (f *PolicyFactory) ToJSON(policy *interest.Policy) PolicyJSON {
	pj := PolicyJSON{
		ID:        string(policy.ID),
		Name:      policy.Name,
		Mode:      string(policy.Mode()),
		GraceDays: policy.GraceDays,
	}
	switch r := policy.Rate.(type) {
	case interest.MonthlyRate:
		rate := r.Rate
		pj.MonthlyRate = &rate
		pj.AnchorDay = r.AnchorDay
	case interest.DailyRate:
		rate := r.Rate
		pj.DailyRate = &rate
	}
	return pj
}

// MarshalPolicy renders a policy as a JSON document.
func (f *PolicyFactory) MarshalPolicy(policy *interest.Policy) (string, error) {
	b, err := json.Marshal(f.ToJSON(policy))
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy: %w", err)
	}
	return string(b), nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func (py policyYAML) toJSON() (PolicyJSON, error) {
	pj := PolicyJSON{
		ID:        py.ID,
		Name:      py.Name,
		Mode:      py.Mode,
		AnchorDay: py.AnchorDay,
		GraceDays: py.GraceDays,
	}
	var err error
	if pj.MonthlyRate, err = parseRate("monthly_rate", py.MonthlyRate); err != nil {
		return PolicyJSON{}, err
	}
	if pj.DailyRate, err = parseRate("daily_rate", py.DailyRate); err != nil {
		return PolicyJSON{}, err
	}
	return pj, nil
}

func parseRate(field, s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &interest.ConfigurationError{Field: field, Reason: fmt.Sprintf("not a decimal: %q", s)}
	}
	return &d, nil
}
