// Package nudge selects which at-risk clients receive a nudge, which template
// they get, and renders the personalized message body.
package nudge

import (
	"fmt"
	"sort"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
)

// DefaultMaxPerWeek caps how often one category may be sent to one client.
const DefaultMaxPerWeek = 1

// Template is a message body for one category and eligibility tier.
type Template struct {
	ID         string           `json:"id" yaml:"id"`
	Category   domain.NudgeType `json:"category" yaml:"category"`
	Body       string           `json:"body" yaml:"body"`
	MaxPerWeek int              `json:"max_per_week" yaml:"max_per_week"`
}

// MinInterval is the shortest gap allowed between two nudges of this
// template's category to the same client. Zero means uncapped.
func (t Template) MinInterval() time.Duration {
	if t.MaxPerWeek <= 0 {
		return 0
	}
	return 7 * 24 * time.Hour / time.Duration(t.MaxPerWeek)
}

var defaultTemplates = []Template{
	{
		ID:       domain.TemplateKey(domain.NudgeBookingReminder, domain.EligibilityHigh),
		Category: domain.NudgeBookingReminder,
		Body:     "Hi {first_name}, it's been {days_since_last_session} days since your last session. Want me to hold a spot for you this week? - {trainer_name}",
	},
	{
		ID:       domain.TemplateKey(domain.NudgeCheckIn, domain.EligibilityHigh),
		Category: domain.NudgeCheckIn,
		Body:     "Hey {first_name}, just checking in. How are you feeling about your training lately? I'm here if anything's getting in the way. - {trainer_name}",
	},
	{
		ID:       domain.TemplateKey(domain.NudgeMotivation, domain.EligibilityMedium),
		Category: domain.NudgeMotivation,
		Body:     "{first_name}, small steps still count. Even a 20 minute session this week keeps your momentum going. You've got this! - {trainer_name}",
	},
	{
		ID:       domain.TemplateKey(domain.NudgeCheckIn, domain.EligibilityLow),
		Category: domain.NudgeCheckIn,
		Body:     "Hi {first_name}! Quick check-in from {trainer_name}. Anything I can help with before your next session?",
	},
	{
		ID:       string(domain.NudgeCheckIn),
		Category: domain.NudgeCheckIn,
		Body:     "Hi {first_name}, checking in to see how things are going. - {trainer_name}",
	},
	{
		ID:       string(domain.NudgeBookingReminder),
		Category: domain.NudgeBookingReminder,
		Body:     "Hi {first_name}, ready to get your next session on the calendar? - {trainer_name}",
	},
	{
		ID:       string(domain.NudgeMotivation),
		Category: domain.NudgeMotivation,
		Body:     "{first_name}, every session counts. Let's keep going! - {trainer_name}",
	},
}

// Catalog resolves template IDs to templates.
type Catalog struct {
	templates map[string]Template
}

// NewCatalog builds a catalog from the built-in templates with overrides
// layered on top. Overrides replace built-ins with the same ID.
func NewCatalog(overrides ...Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]Template, len(defaultTemplates)+len(overrides))}
	for _, t := range defaultTemplates {
		t.MaxPerWeek = DefaultMaxPerWeek
		c.templates[t.ID] = t
	}
	for _, t := range overrides {
		if t.ID == "" || t.Body == "" {
			return nil, fmt.Errorf("template override needs id and body: %+v", t)
		}
		if !t.Category.Valid() {
			if base, ok := c.templates[t.ID]; ok {
				t.Category = base.Category
			} else {
				return nil, fmt.Errorf("template %s: unknown category %q", t.ID, t.Category)
			}
		}
		c.templates[t.ID] = t
	}
	return c, nil
}

// Lookup returns the template for id, falling back to the category-wide
// template when no tier-specific one exists.
func (c *Catalog) Lookup(id string, category domain.NudgeType) (Template, bool) {
	if t, ok := c.templates[id]; ok {
		return t, true
	}
	t, ok := c.templates[string(category)]
	return t, ok
}

// IDs lists template IDs in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Templates returns every template, ordered by ID.
func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, id := range c.IDs() {
		out = append(out, c.templates[id])
	}
	return out
}
