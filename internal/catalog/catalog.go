// Package catalog holds the static reference data the dispatch core
// consults: incident types grouped by category, per-type base
// priorities, recommended responder roles and the auto-deployment
// rules. The data ships as a single YAML asset; an embedded default is
// used when no path is configured. The catalog is read-only after Load.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

//go:embed default.yaml
var defaultAsset []byte

type categorySpec struct {
	Types           []string          `yaml:"types"`
	DefaultPriority string            `yaml:"default_priority"`
	Priorities      map[string]string `yaml:"priorities"`
	Roles           []string          `yaml:"roles"`
	Resources       map[string]int    `yaml:"resources"`
}

type asset struct {
	Categories map[string]categorySpec `yaml:"categories"`
	Inventory  map[string]int          `yaml:"inventory"`
}

type categoryData struct {
	defaultPriority models.Priority
	priorities      map[string]models.Priority
	roles           []string
	resources       map[string]int
}

type Catalog struct {
	categories map[models.Category]categoryData
	typeToCat  map[string]models.Category
	inventory  map[string]int
}

// Load reads the catalog asset at path, or the embedded default when
// path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultAsset
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading catalog asset: %w", err)
		}
		raw = b
	}
	return parse(raw)
}

func parse(raw []byte) (*Catalog, error) {
	var a asset
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("error parsing catalog asset: %w", err)
	}
	if len(a.Categories) == 0 {
		return nil, fmt.Errorf("catalog asset defines no categories")
	}

	c := &Catalog{
		categories: make(map[models.Category]categoryData, len(a.Categories)),
		typeToCat:  make(map[string]models.Category),
		inventory:  make(map[string]int, len(a.Inventory)),
	}

	for name, spec := range a.Categories {
		cat := models.Category(name)
		data := categoryData{
			defaultPriority: models.PriorityMedium,
			priorities:      make(map[string]models.Priority, len(spec.Priorities)),
			roles:           append([]string(nil), spec.Roles...),
			resources:       make(map[string]int, len(spec.Resources)),
		}
		if spec.DefaultPriority != "" {
			p := models.ParsePriority(spec.DefaultPriority)
			if !p.IsValid() {
				return nil, fmt.Errorf("category %q: invalid default priority %q", name, spec.DefaultPriority)
			}
			data.defaultPriority = p
		}
		for typ, ps := range spec.Priorities {
			p := models.ParsePriority(ps)
			if !p.IsValid() {
				return nil, fmt.Errorf("category %q: invalid priority %q for type %q", name, ps, typ)
			}
			data.priorities[typ] = p
		}
		for res, qty := range spec.Resources {
			if qty < 1 {
				return nil, fmt.Errorf("category %q: invalid quantity %d for resource %q", name, qty, res)
			}
			data.resources[res] = qty
		}
		for _, typ := range spec.Types {
			if other, dup := c.typeToCat[typ]; dup {
				return nil, fmt.Errorf("incident type %q listed under both %q and %q", typ, other, name)
			}
			c.typeToCat[typ] = cat
		}
		c.categories[cat] = data
	}

	for res, count := range a.Inventory {
		if count < 0 {
			return nil, fmt.Errorf("inventory: negative count %d for %q", count, res)
		}
		c.inventory[res] = count
	}

	return c, nil
}

// CategoryOf returns the category an incident type belongs to. Unknown
// types resolve to the general category with ok=false.
func (c *Catalog) CategoryOf(incidentType string) (models.Category, bool) {
	if cat, ok := c.typeToCat[incidentType]; ok {
		return cat, true
	}
	return models.CategoryGeneral, false
}

// BasePriority returns the static priority for an incident type.
// Types missing from the category table fall back to the category
// default; unknown categories fall back to Medium.
func (c *Catalog) BasePriority(cat models.Category, incidentType string) models.Priority {
	data, ok := c.categories[cat]
	if !ok {
		return models.PriorityMedium
	}
	if p, ok := data.priorities[incidentType]; ok {
		return p
	}
	return data.defaultPriority
}

// RecommendedRoles returns the responder role directory entry for a
// category. Unknown categories return nil.
func (c *Catalog) RecommendedRoles(cat models.Category) []string {
	data, ok := c.categories[cat]
	if !ok {
		return nil
	}
	return append([]string(nil), data.roles...)
}

// DeploymentRule returns the resource quantities to auto-deploy when an
// incident of the category goes ongoing. Categories with no rule return
// an empty map.
func (c *Catalog) DeploymentRule(cat models.Category) map[string]int {
	data, ok := c.categories[cat]
	if !ok {
		return map[string]int{}
	}
	rule := make(map[string]int, len(data.resources))
	for res, qty := range data.resources {
		rule[res] = qty
	}
	return rule
}

// Inventory returns the fixed resource capacities.
func (c *Catalog) Inventory() map[string]int {
	inv := make(map[string]int, len(c.inventory))
	for res, count := range c.inventory {
		inv[res] = count
	}
	return inv
}

// Categories returns all known categories, sorted.
func (c *Catalog) Categories() []models.Category {
	cats := make([]models.Category, 0, len(c.categories))
	for cat := range c.categories {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Types returns the incident types registered under a category, sorted.
func (c *Catalog) Types(cat models.Category) []string {
	var types []string
	for typ, tc := range c.typeToCat {
		if tc == cat {
			types = append(types, typ)
		}
	}
	sort.Strings(types)
	return types
}

// KnownCategory reports whether the category exists in the catalog.
func (c *Catalog) KnownCategory(cat models.Category) bool {
	_, ok := c.categories[cat]
	return ok
}
