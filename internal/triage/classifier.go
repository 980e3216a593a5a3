// Package triage derives an incident's operational priority from its
// type and the reported facts.
package triage

import (
	"github.com/rafikh/go-emergency-dispatch/internal/catalog"
	"github.com/rafikh/go-emergency-dispatch/internal/models"
)

type Classifier struct {
	catalog *catalog.Catalog
}

func NewClassifier(c *catalog.Catalog) *Classifier {
	return &Classifier{catalog: c}
}

// Classify stamps a priority for a new incident. The base priority
// comes from the catalog tables (unknown types and categories degrade
// to defaults, never reject). A reported injury escalates the result by
// exactly one step toward P1; P1 is never escalated further, and facts
// never lower a priority.
func (c *Classifier) Classify(incidentType string, cat models.Category, facts models.Facts) models.Priority {
	p := c.catalog.BasePriority(cat, incidentType)
	if facts.InjuryReported() {
		p = p.Escalate()
	}
	return p
}
