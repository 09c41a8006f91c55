package subscription

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable subscription plan
type Plan struct {
	Name     string          `json:"name"`
	PriceID  string          `json:"-"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Interval string          `json:"interval"`
}

// ParsePlan builds a Plan from its configured fields. amount is a decimal
// string such as "9.99"; an empty amount is zero.
func ParsePlan(name, priceID, amount, currency, interval string) (Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Plan{}, fmt.Errorf("plan name is required")
	}
	if priceID == "" {
		return Plan{}, fmt.Errorf("plan %s: price id is required", name)
	}

	amt := decimal.Zero
	if amount != "" {
		var err error
		amt, err = decimal.NewFromString(amount)
		if err != nil {
			return Plan{}, fmt.Errorf("plan %s: invalid amount %q: %w", name, amount, err)
		}
	}
	if amt.IsNegative() {
		return Plan{}, fmt.Errorf("plan %s: amount cannot be negative", name)
	}

	return Plan{
		Name:     name,
		PriceID:  priceID,
		Amount:   amt.Round(2),
		Currency: strings.ToLower(currency),
		Interval: interval,
	}, nil
}

// PlanCatalog is the fixed set of plans offered at checkout
type PlanCatalog struct {
	plans  []Plan
	byName map[string]Plan
}

// NewPlanCatalog creates a catalog, rejecting duplicate names
func NewPlanCatalog(plans []Plan) (*PlanCatalog, error) {
	c := &PlanCatalog{
		plans:  make([]Plan, 0, len(plans)),
		byName: make(map[string]Plan, len(plans)),
	}
	for _, p := range plans {
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Name)
		}
		c.byName[p.Name] = p
		c.plans = append(c.plans, p)
	}
	return c, nil
}

// Lookup returns the plan called name
func (c *PlanCatalog) Lookup(name string) (Plan, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// List returns the plans in configuration order
func (c *PlanCatalog) List() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
