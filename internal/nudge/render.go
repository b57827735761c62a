package nudge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/coach-nudge/internal/domain"
)

// Fields are the personalization values available to a template.
type Fields struct {
	FirstName            string
	LastName             string
	TrainerName          string
	DaysSinceLastSession int
	DaysSinceLastMessage int
	Tags                 []string
}

// FieldsFor builds personalization fields for a client.
func FieldsFor(f domain.ClientFacts, p domain.RiskProfile, trainerName string) Fields {
	return Fields{
		FirstName:            f.FirstName,
		LastName:             f.LastName,
		TrainerName:          trainerName,
		DaysSinceLastSession: p.DaysSinceLastBooking,
		DaysSinceLastMessage: p.DaysSinceLastMessage,
		Tags:                 f.Tags,
	}
}

func (f Fields) bindings() map[string]interface{} {
	primaryTag := ""
	if len(f.Tags) > 0 {
		primaryTag = f.Tags[0]
	}
	return map[string]interface{}{
		"first_name":              f.FirstName,
		"last_name":               f.LastName,
		"trainer_name":            f.TrainerName,
		"days_since_last_session": f.DaysSinceLastSession,
		"days_since_last_message": f.DaysSinceLastMessage,
		"primary_tag":             primaryTag,
		"tags":                    f.Tags,
	}
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Renderer personalizes template bodies. Bodies may use single-brace
// placeholders ({first_name}) or full Liquid syntax.
type Renderer struct {
	engine *liquid.Engine
}

// NewRenderer creates a renderer with the nudge-specific filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | or_friend }}
	engine.RegisterFilter("or_friend", func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "there"
		}
		return s
	})

	// {{ days_since_last_session | days }} -> "1 day" / "12 days"
	engine.RegisterFilter("days", func(n int) string {
		if n == 1 {
			return "1 day"
		}
		return strconv.Itoa(n) + " days"
	})

	return &Renderer{engine: engine}
}

// ToLiquid rewrites single-brace placeholders into Liquid output tags.
// Bodies that already contain Liquid markup are returned unchanged.
func ToLiquid(body string) string {
	if strings.Contains(body, "{{") || strings.Contains(body, "{%") {
		return body
	}
	return placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := m[1 : len(m)-1]
		if name == "first_name" {
			return "{{ first_name | or_friend }}"
		}
		return "{{ " + name + " }}"
	})
}

// Render personalizes body with the given fields.
func (r *Renderer) Render(body string, f Fields) (string, error) {
	out, err := r.engine.ParseAndRenderString(ToLiquid(body), f.bindings())
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return strings.TrimSpace(out), nil
}
