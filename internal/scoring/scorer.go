package scoring

import (
	"math"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
)

// Breakdown lists the contribution of each term before the final clamp.
type Breakdown struct {
	Recency       float64 `json:"recency"`
	BookingGap    float64 `json:"booking_gap"`
	Frequency     float64 `json:"frequency"`
	MissedSession float64 `json:"missed_session"`
	Inactivity    float64 `json:"inactivity"`
}

// Total is the raw, unclamped sum of all terms.
func (b Breakdown) Total() float64 {
	return b.Recency + b.BookingGap + b.Frequency + b.MissedSession + b.Inactivity
}

// Scorer computes risk profiles with a fixed policy.
type Scorer struct {
	policy Policy
}

// NewScorer creates a scorer. The zero Policy means DefaultPolicy.
func NewScorer(p Policy) *Scorer {
	return &Scorer{policy: p.WithDefaults()}
}

// Evaluate scores the facts and classifies the result into a RiskProfile.
func (s *Scorer) Evaluate(f domain.ClientFacts, now time.Time) domain.RiskProfile {
	score, _ := s.Score(f, now)
	c := Classify(score)
	return domain.RiskProfile{
		ClientID:             f.ClientID,
		TrainerID:            f.TrainerID,
		RiskScore:            score,
		DaysSinceLastMessage: DaysSince(f.LastMessageSentAt, now),
		DaysSinceLastBooking: DaysSince(f.LastBookingAt, now),
		Eligibility:          c.Eligibility,
		RecommendedNudgeType: c.NudgeType,
		UrgencyLevel:         c.Urgency,
		EvaluatedAt:          now,
	}
}

// Score returns the clamped, rounded risk score and the per-term breakdown.
// The raw sum is clamped to [0,100] first and rounded half away from zero
// afterwards.
func (s *Scorer) Score(f domain.ClientFacts, now time.Time) (int, Breakdown) {
	p := s.policy
	window := time.Duration(p.WindowDays) * 24 * time.Hour
	since := now.Add(-window)

	var b Breakdown
	b.Recency = math.Min(p.MessageCap, float64(DaysSince(f.LastMessageSentAt, now))*p.MessageDayWeight)
	b.BookingGap = math.Min(p.BookingCap, float64(DaysSince(f.LastBookingAt, now))*p.BookingDayWeight)

	recentMessages := 0
	for _, m := range f.MessageHistory {
		if inWindow(m.CreatedAt, since, now) {
			recentMessages++
		}
	}
	frequency := float64(recentMessages) / float64(p.WindowDays)
	switch {
	case frequency < 0.5*p.ExpectedFrequency:
		b.Frequency = p.LowFrequencyPoints
	case frequency < p.ExpectedFrequency:
		b.Frequency = p.BelowExpectedPoints
	}

	total, missed, recentBookings := 0, 0, 0
	for _, bk := range f.BookingHistory {
		total++
		if bk.Status == domain.BookingNoShow {
			missed++
		}
		if inWindow(bk.ScheduledAt, since, now) {
			recentBookings++
		}
	}
	if total > 0 {
		b.MissedSession = float64(missed) / float64(total) * p.MissedSessionWeight
		if recentBookings == 0 {
			b.Inactivity = p.InactivityBonus
		}
	}

	return clampRound(b.Total()), b
}

// DaysSince returns whole days elapsed between t and now. A nil timestamp
// yields MissingDays; a timestamp in the future yields 0.
func DaysSince(t *time.Time, now time.Time) int {
	if t == nil || t.IsZero() {
		return MissingDays
	}
	d := now.Sub(*t)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if days > MissingDays {
		return MissingDays
	}
	return days
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func clampRound(v float64) int {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(math.Round(v))
}
