package domain

import (
	"fmt"
	"time"
)

// Eligibility is the coarse tier derived from a risk score.
type Eligibility string

const (
	EligibilityNone   Eligibility = "none"
	EligibilityLow    Eligibility = "low"
	EligibilityMedium Eligibility = "medium"
	EligibilityHigh   Eligibility = "high"
)

// NudgeType is the message category recommended for a client.
type NudgeType string

const (
	NudgeNone            NudgeType = ""
	NudgeCheckIn         NudgeType = "check_in"
	NudgeBookingReminder NudgeType = "booking_reminder"
	NudgeMotivation      NudgeType = "motivation"
)

// Valid reports whether t names a known nudge category.
func (t NudgeType) Valid() bool {
	switch t {
	case NudgeCheckIn, NudgeBookingReminder, NudgeMotivation:
		return true
	}
	return false
}

// RiskProfile is the latest risk snapshot for a client. It is upserted per
// client on every run and never appended to.
type RiskProfile struct {
	ClientID             string      `json:"client_id" db:"client_id"`
	TrainerID            string      `json:"trainer_id" db:"trainer_id"`
	RiskScore            int         `json:"risk_score" db:"risk_score"`
	DaysSinceLastMessage int         `json:"days_since_last_message" db:"days_since_last_message"`
	DaysSinceLastBooking int         `json:"days_since_last_booking" db:"days_since_last_booking"`
	Eligibility          Eligibility `json:"eligibility" db:"eligibility"`
	RecommendedNudgeType NudgeType   `json:"recommended_nudge_type" db:"recommended_nudge_type"`
	UrgencyLevel         int         `json:"urgency_level" db:"urgency_level"`
	EvaluatedAt          time.Time   `json:"evaluated_at" db:"evaluated_at"`
}

// Actionable reports whether the profile qualifies for any nudge at all.
func (p RiskProfile) Actionable() bool {
	return p.Eligibility != EligibilityNone && p.RecommendedNudgeType.Valid()
}

// TemplateID returns the template key for the profile's category and tier.
func (p RiskProfile) TemplateID() string {
	return TemplateKey(p.RecommendedNudgeType, p.Eligibility)
}

// TemplateKey builds a template identifier such as "booking_reminder.high".
func TemplateKey(t NudgeType, e Eligibility) string {
	return fmt.Sprintf("%s.%s", t, e)
}

// NudgeCandidate is a risk profile promoted to actionable for ranking.
type NudgeCandidate struct {
	RiskProfile
	TemplateID    string `json:"template_id"`
	PriorityScore int    `json:"priority_score"`
}

// NudgeHistory tracks when a category of nudge was last scheduled for a client.
type NudgeHistory struct {
	ClientID     string    `json:"client_id" db:"client_id"`
	Category     NudgeType `json:"category" db:"category"`
	LastNudgedAt time.Time `json:"last_nudged_at" db:"last_nudged_at"`
}
