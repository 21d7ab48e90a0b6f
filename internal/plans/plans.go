// Package plans holds the catalog of challenge tiers a participant can buy.
package plans

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"propdesk/internal/apperr"
	"propdesk/internal/types"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultCatalog []byte

type Plan struct {
	ID              types.PlanType  `yaml:"id" json:"id"`
	Name            string          `yaml:"name" json:"name"`
	Price           decimal.Decimal `yaml:"-" json:"price"`
	Currency        string          `yaml:"currency" json:"currency"`
	StartingBalance decimal.Decimal `yaml:"-" json:"starting_balance"`
	MaxDailyLossPct decimal.Decimal `yaml:"-" json:"max_daily_loss_pct"`
	MaxTotalLossPct decimal.Decimal `yaml:"-" json:"max_total_loss_pct"`
	ProfitTargetPct decimal.Decimal `yaml:"-" json:"profit_target_pct"`
}

type planYAML struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Price           string `yaml:"price"`
	Currency        string `yaml:"currency"`
	StartingBalance string `yaml:"starting_balance"`
	MaxDailyLossPct string `yaml:"max_daily_loss_pct"`
	MaxTotalLossPct string `yaml:"max_total_loss_pct"`
	ProfitTargetPct string `yaml:"profit_target_pct"`
}

type catalogYAML struct {
	Plans []planYAML `yaml:"plans"`
}

type Catalog struct {
	plans map[types.PlanType]Plan
}

// Default returns the built-in starter/pro/elite catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("plans: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file; an empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var doc catalogYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.New("parse plans: catalog is empty")
	}
	c := &Catalog{plans: make(map[types.PlanType]Plan, len(doc.Plans))}
	for _, p := range doc.Plans {
		plan, err := p.toPlan()
		if err != nil {
			return nil, err
		}
		if _, dup := c.plans[plan.ID]; dup {
			return nil, fmt.Errorf("parse plans: duplicate plan %q", plan.ID)
		}
		c.plans[plan.ID] = plan
	}
	return c, nil
}

func (p planYAML) toPlan() (Plan, error) {
	id := strings.ToLower(strings.TrimSpace(p.ID))
	if id == "" {
		return Plan{}, errors.New("parse plans: plan id is required")
	}
	plan := Plan{ID: types.PlanType(id), Name: p.Name, Currency: p.Currency}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"price", p.Price, &plan.Price},
		{"starting_balance", p.StartingBalance, &plan.StartingBalance},
		{"max_daily_loss_pct", p.MaxDailyLossPct, &plan.MaxDailyLossPct},
		{"max_total_loss_pct", p.MaxTotalLossPct, &plan.MaxTotalLossPct},
		{"profit_target_pct", p.ProfitTargetPct, &plan.ProfitTargetPct},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return Plan{}, fmt.Errorf("parse plans: %s.%s: %w", id, f.name, err)
		}
		if !v.IsPositive() {
			return Plan{}, fmt.Errorf("parse plans: %s.%s must be positive", id, f.name)
		}
		*f.dst = v
	}
	if plan.Name == "" {
		plan.Name = strings.ToUpper(id[:1]) + id[1:]
	}
	return plan, nil
}

func (c *Catalog) Get(id types.PlanType) (Plan, error) {
	p, ok := c.plans[types.PlanType(strings.ToLower(strings.TrimSpace(string(id))))]
	if !ok {
		return Plan{}, apperr.Validation("invalid plan type")
	}
	return p, nil
}

// List returns plans ordered by starting balance.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartingBalance.Equal(out[j].StartingBalance) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartingBalance.LessThan(out[j].StartingBalance)
	})
	return out
}

// Marshal renders the catalog in the format Parse reads.
func (c *Catalog) Marshal() ([]byte, error) {
	doc := catalogYAML{}
	for _, p := range c.List() {
		doc.Plans = append(doc.Plans, planYAML{
			ID:              string(p.ID),
			Name:            p.Name,
			Price:           p.Price.String(),
			Currency:        p.Currency,
			StartingBalance: p.StartingBalance.String(),
			MaxDailyLossPct: p.MaxDailyLossPct.String(),
			MaxTotalLossPct: p.MaxTotalLossPct.String(),
			ProfitTargetPct: p.ProfitTargetPct.String(),
		})
	}
	return yaml.Marshal(doc)
}
