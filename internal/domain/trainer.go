package domain

// TrainerSettings is the per-trainer nudge configuration, read once per run.
type TrainerSettings struct {
	TrainerID        string  `json:"trainer_id" db:"trainer_id"`
	TrainerName      string  `json:"trainer_name" db:"trainer_name"`
	Enabled          bool    `json:"enabled" db:"enabled"`
	DailyLimit       int     `json:"daily_limit" db:"daily_limit"`
	MinRiskThreshold int     `json:"min_risk_threshold" db:"min_risk_threshold"`
	Timezone         string  `json:"timezone" db:"timezone"`
	QuietHoursStart  int     `json:"quiet_hours_start" db:"quiet_hours_start"` // local hour, 0-23
	QuietHoursEnd    int     `json:"quiet_hours_end" db:"quiet_hours_end"`     // local hour, 0-23
	Channel          Channel `json:"channel" db:"channel"`
}

// HasQuietHours reports whether a quiet window is configured.
func (s TrainerSettings) HasQuietHours() bool {
	return s.QuietHoursStart != s.QuietHoursEnd
}
