// Package drafts asks the AI collaborator to rewrite a rendered nudge
// template into final message copy in the trainer's voice.
package drafts

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ignite/coach-nudge/internal/ai"
	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/nudge"
)

// Length limits per channel, in runes.
const (
	MaxSMSLength   = 320
	MaxEmailLength = 2000
)

// Source says where a draft's content came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceTemplate Source = "template"
)

// Request is everything needed to draft one client's message.
type Request struct {
	Channel  domain.Channel
	Template string // rendered template text
	Fields   nudge.Fields
	Profile  domain.RiskProfile
}

// Draft is the final message copy.
type Draft struct {
	Content string `json:"content"`
	Source  Source `json:"source"`
}

// Service drafts messages. A nil generator makes every draft the rendered
// template itself.
type Service struct {
	gen     ai.Generator
	timeout time.Duration
}

// New creates a draft service.
func New(gen ai.Generator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{gen: gen, timeout: timeout}
}

// Draft generates copy for one client. Generation errors are returned as-is
// so callers can distinguish ai.ErrRateLimited and ai.ErrQuotaExceeded.
func (s *Service) Draft(ctx context.Context, req Request) (Draft, error) {
	if s.gen == nil {
		return Draft{Content: Clamp(req.Template, req.Channel), Source: SourceTemplate}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.gen.Generate(ctx, BuildPrompt(req))
	if err != nil {
		return Draft{}, fmt.Errorf("generate draft: %w", err)
	}
	return Draft{Content: Clamp(Clean(text), req.Channel), Source: SourceAI}, nil
}

// BuildPrompt describes the client and the base template to the model.
func BuildPrompt(req Request) ai.Prompt {
	trainer := req.Fields.TrainerName
	if trainer == "" {
		trainer = "their personal trainer"
	}
	system := fmt.Sprintf(
		"You write short, warm re-engagement messages on behalf of %s, a personal trainer. "+
			"Write in the first person as the trainer. Never mention scores, risk or automation. "+
			"Return only the message text.", trainer)

	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s (max %d characters)\n", channelName(req.Channel), maxLength(req.Channel))
	fmt.Fprintf(&b, "Message type: %s\n", strings.ReplaceAll(string(req.Profile.RecommendedNudgeType), "_", " "))
	fmt.Fprintf(&b, "Urgency: %d of 5\n", req.Profile.UrgencyLevel)
	if req.Fields.FirstName != "" {
		fmt.Fprintf(&b, "Client first name: %s\n", req.Fields.FirstName)
	}
	if req.Profile.DaysSinceLastBooking < 999 {
		fmt.Fprintf(&b, "Days since last session: %d\n", req.Profile.DaysSinceLastBooking)
	} else {
		b.WriteString("The client has never booked a session.\n")
	}
	if req.Profile.DaysSinceLastMessage < 999 {
		fmt.Fprintf(&b, "Days since last message from the trainer: %d\n", req.Profile.DaysSinceLastMessage)
	}
	if len(req.Fields.Tags) > 0 {
		fmt.Fprintf(&b, "Client interests: %s\n", strings.Join(req.Fields.Tags, ", "))
	}
	fmt.Fprintf(&b, "\nRewrite this draft so it sounds personal:\n%s", req.Template)

	return ai.Prompt{System: system, User: b.String()}
}

// Clean strips whitespace and wrapping quotes models like to add.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// Clamp cuts content to the channel limit, preferring a word boundary.
func Clamp(s string, ch domain.Channel) string {
	limit := maxLength(ch)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)[:limit]
	for i := len(r) - 1; i > limit/2; i-- {
		if r[i] == ' ' || r[i] == '\n' {
			r = r[:i]
			break
		}
	}
	return strings.TrimSpace(string(r))
}

func maxLength(ch domain.Channel) int {
	if ch == domain.ChannelEmail {
		return MaxEmailLength
	}
	return MaxSMSLength
}

func channelName(ch domain.Channel) string {
	if ch == domain.ChannelEmail {
		return "email"
	}
	return "SMS"
}
