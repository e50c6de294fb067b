package ranking

import (
	"fmt"
	"slices"

	"longentry/market"
)

// Pool is a group of categories sharing one activation cap.
type Pool struct {
	Name       string            `yaml:"name" json:"name"`
	Categories []market.Category `yaml:"categories" json:"categories"`
	MaxActive  int               `yaml:"max_active" json:"max_active"`
	MinScore   float64           `yaml:"min_score" json:"min_score"`
}

// Includes reports whether the category belongs to the pool.
func (p Pool) Includes(c market.Category) bool {
	return slices.Contains(p.Categories, c)
}

// DefaultPools returns the two production pools.
func DefaultPools() []Pool {
	return []Pool{
		{
			Name:       "indices_commodities",
			Categories: []market.Category{market.CategoryCommodity, market.CategoryIndex},
			MaxActive:  6,
			MinScore:   40,
		},
		{
			Name:       "stocks",
			Categories: []market.Category{market.CategoryStock},
			MaxActive:  6,
			MinScore:   40,
		},
	}
}

// PoolFor returns the pool that holds the category.
func PoolFor(pools []Pool, c market.Category) (Pool, bool) {
	for _, p := range pools {
		if p.Includes(c) {
			return p, true
		}
	}
	return Pool{}, false
}

// FindPool returns the pool with the given name.
func FindPool(pools []Pool, name string) (Pool, bool) {
	for _, p := range pools {
		if p.Name == name {
			return p, true
		}
	}
	return Pool{}, false
}

// ValidatePools checks names, caps and that no category is in two pools.
func ValidatePools(pools []Pool) error {
	if len(pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}
	names := map[string]bool{}
	owner := map[market.Category]string{}
	for _, p := range pools {
		if p.Name == "" {
			return fmt.Errorf("pool name must not be empty")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate pool %q", p.Name)
		}
		names[p.Name] = true
		if p.MaxActive < 0 {
			return fmt.Errorf("pool %s: max_active must be >= 0", p.Name)
		}
		if p.MinScore < 0 || p.MinScore > 100 {
			return fmt.Errorf("pool %s: min_score must be within [0,100]", p.Name)
		}
		for _, c := range p.Categories {
			if _, ok := market.ParseCategory(string(c)); !ok {
				return fmt.Errorf("pool %s: unknown category %q", p.Name, c)
			}
			if other, ok := owner[c]; ok {
				return fmt.Errorf("category %s is in pools %s and %s", c, other, p.Name)
			}
			owner[c] = p.Name
		}
	}
	return nil
}
