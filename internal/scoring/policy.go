// Package scoring turns a ClientFacts snapshot into a bounded risk score and
// maps that score onto an eligibility tier, a nudge category and an urgency.
//
// Everything here is a pure function of its inputs plus an explicit "now".
package scoring

// MissingDays is the day count used when a timestamp is absent. It is large
// enough to saturate every capped term without overflowing the arithmetic.
const MissingDays = 999

// Policy holds the weights and thresholds of the risk heuristic. The values
// are policy, not derived; DefaultPolicy carries the production settings.
type Policy struct {
	MessageDayWeight    float64 `yaml:"message_day_weight"`
	MessageCap          float64 `yaml:"message_cap"`
	BookingDayWeight    float64 `yaml:"booking_day_weight"`
	BookingCap          float64 `yaml:"booking_cap"`
	WindowDays          int     `yaml:"window_days"`
	ExpectedFrequency   float64 `yaml:"expected_frequency"` // messages per day
	LowFrequencyPoints  float64 `yaml:"low_frequency_points"`
	BelowExpectedPoints float64 `yaml:"below_expected_points"`
	MissedSessionWeight float64 `yaml:"missed_session_weight"`
	InactivityBonus     float64 `yaml:"inactivity_bonus"`
}

// DefaultPolicy returns the standard scoring weights.
func DefaultPolicy() Policy {
	return Policy{
		MessageDayWeight:    2,
		MessageCap:          40,
		BookingDayWeight:    1.5,
		BookingCap:          30,
		WindowDays:          30,
		ExpectedFrequency:   0.2,
		LowFrequencyPoints:  15,
		BelowExpectedPoints: 8,
		MissedSessionWeight: 15,
		InactivityBonus:     10,
	}
}

// WithDefaults returns DefaultPolicy for the zero Policy. Otherwise every
// weight is kept as given, including zeros that switch a term off; only the
// window length and expected frequency, which divide and compare, fall back
// to their defaults when not positive.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p == (Policy{}) {
		return d
	}
	if p.WindowDays <= 0 {
		p.WindowDays = d.WindowDays
	}
	if p.ExpectedFrequency <= 0 {
		p.ExpectedFrequency = d.ExpectedFrequency
	}
	return p
}
