// Package plan holds the immutable subscription plan catalog.
package plan

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Type string

const (
	Mini    Type = "mini"
	Maxi    Type = "maxi"
	Premium Type = "premium"
)

var ErrUnknownPlan = errors.New("unknown plan")

type Plan struct {
	Type               Type   `json:"type" yaml:"type"`
	Name               string `json:"name" yaml:"name"`
	Price              int64  `json:"price" yaml:"price"` // minor units
	Currency           string `json:"currency" yaml:"currency"`
	DurationMonths     int    `json:"duration_months" yaml:"duration_months"`
	MaxConcurrentBooks int    `json:"max_concurrent_books" yaml:"max_concurrent_books"`
	Tier               int    `json:"tier" yaml:"tier"`
}

// Catalog is a read-only set of plans keyed by type.
type Catalog struct {
	plans map[Type]Plan
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, _ := NewCatalog([]Plan{
		{Type: Mini, Name: "Mini", Price: 30000, Currency: "UAH", DurationMonths: 1, MaxConcurrentBooks: 1, Tier: 1},
		{Type: Maxi, Name: "Maxi", Price: 50000, Currency: "UAH", DurationMonths: 1, MaxConcurrentBooks: 2, Tier: 2},
		{Type: Premium, Name: "Premium", Price: 250000, Currency: "UAH", DurationMonths: 6, MaxConcurrentBooks: 3, Tier: 3},
	})
	return c
}

func NewCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.New("plan catalog is empty")
	}
	m := make(map[Type]Plan, len(plans))
	for _, p := range plans {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := m[p.Type]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Type)
		}
		m[p.Type] = p
	}
	return &Catalog{plans: m}, nil
}

func (p Plan) validate() error {
	switch {
	case p.Type == "":
		return errors.New("plan type is required")
	case p.Price <= 0:
		return fmt.Errorf("plan %q: price must be positive", p.Type)
	case p.Currency == "":
		return fmt.Errorf("plan %q: currency is required", p.Type)
	case p.DurationMonths <= 0:
		return fmt.Errorf("plan %q: duration_months must be positive", p.Type)
	case p.MaxConcurrentBooks <= 0:
		return fmt.Errorf("plan %q: max_concurrent_books must be positive", p.Type)
	case p.Tier <= 0:
		return fmt.Errorf("plan %q: tier must be positive", p.Type)
	}
	return nil
}

type fileFormat struct {
	Plans []Plan `yaml:"plans"`
}

// LoadFile reads a YAML catalog of the form `plans: [...]`.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	return NewCatalog(f.Plans)
}

// Load returns the catalog from path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func (c *Catalog) Get(t Type) (Plan, error) {
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

// All returns the plans ordered by tier.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}
