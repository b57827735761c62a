package domain

import "time"

// RunReport summarizes one scoring run for one trainer.
type RunReport struct {
	RunID         string         `json:"run_id"`
	TrainerID     string         `json:"trainer_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	DurationMS    int64          `json:"duration_ms"`
	Skipped       string         `json:"skipped,omitempty"`
	Collected     int            `json:"collected"`
	Scored        int            `json:"scored"`
	Eligible      int            `json:"eligible"`
	Selected      int            `json:"selected"`
	Scheduled     int            `json:"scheduled"`
	Suppressed    int            `json:"suppressed"`
	DraftFailures int            `json:"draft_failures"`
	WriteFailures int            `json:"write_failures"`
	Dropped       map[string]int `json:"dropped,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// DispatchReport summarizes one dispatch pass.
type DispatchReport struct {
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	Due        int            `json:"due"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Conflicts  int            `json:"conflicts"`
	Reasons    map[string]int `json:"reasons,omitempty"`
}
