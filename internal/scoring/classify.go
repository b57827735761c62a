package scoring

import "github.com/ignite/coach-nudge/internal/domain"

// Classification is the selector's view of a risk score.
type Classification struct {
	Eligibility domain.Eligibility
	NudgeType   domain.NudgeType
	Urgency     int
}

type tier struct {
	minScore int
	Classification
}

// tiers are evaluated top-down; the first match wins.
var tiers = []tier{
	{80, Classification{domain.EligibilityHigh, domain.NudgeBookingReminder, 5}},
	{60, Classification{domain.EligibilityHigh, domain.NudgeCheckIn, 4}},
	{40, Classification{domain.EligibilityMedium, domain.NudgeMotivation, 3}},
	{20, Classification{domain.EligibilityLow, domain.NudgeCheckIn, 2}},
}

// Classify maps a risk score to eligibility, nudge category and urgency.
func Classify(score int) Classification {
	for _, t := range tiers {
		if score >= t.minScore {
			return t.Classification
		}
	}
	return Classification{Eligibility: domain.EligibilityNone, NudgeType: domain.NudgeNone, Urgency: 1}
}

// PriorityScore ranks candidates competing for a trainer's daily budget.
func PriorityScore(riskScore, urgency int) int {
	return riskScore + urgency*10
}
