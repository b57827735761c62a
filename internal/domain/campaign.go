package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a scheduled nudge.
type CampaignStatus string

const (
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
)

// CanTransition reports whether from -> to is a legal status change. The only
// legal moves are scheduled -> sent and scheduled -> failed.
func CanTransition(from, to CampaignStatus) bool {
	return from == CampaignScheduled && (to == CampaignSent || to == CampaignFailed)
}

// Channel selects how a nudge is delivered.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ScheduledCampaign is a single nudge message to one client.
type ScheduledCampaign struct {
	ID            string         `json:"id" db:"id"`
	TrainerID     string         `json:"trainer_id" db:"trainer_id"`
	ClientID      string         `json:"client_id" db:"client_id"`
	TemplateID    string         `json:"template_id" db:"template_id"`
	Category      NudgeType      `json:"category" db:"category"`
	Channel       Channel        `json:"channel" db:"channel"`
	Content       string         `json:"content" db:"content"`
	RiskScore     int            `json:"risk_score" db:"risk_score"`
	PriorityScore int            `json:"priority_score" db:"priority_score"`
	ScheduledFor  time.Time      `json:"scheduled_for" db:"scheduled_for"`
	Status        CampaignStatus `json:"status" db:"status"`
	FailureReason string         `json:"failure_reason,omitempty" db:"failure_reason"`
	ExternalID    string         `json:"external_id,omitempty" db:"external_id"`
	SentAt        *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

