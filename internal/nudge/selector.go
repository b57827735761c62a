package nudge

import (
	"sort"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/scoring"
)

// DropReason explains why a profile did not become a campaign.
type DropReason string

const (
	DropIneligible     DropReason = "ineligible"
	DropBelowThreshold DropReason = "below_threshold"
	DropPending        DropReason = "pending_campaign"
	DropFrequencyCap   DropReason = "frequency_cap"
	DropNoTemplate     DropReason = "no_template"
	DropDailyLimit     DropReason = "daily_limit"
)

// Drop records a profile that was filtered out.
type Drop struct {
	ClientID string     `json:"client_id"`
	Reason   DropReason `json:"reason"`
}

// HistoryKey indexes last-nudge timestamps by client and category.
func HistoryKey(clientID string, category domain.NudgeType) string {
	return clientID + "|" + string(category)
}

// SelectInput is everything the selector needs for one trainer's run.
type SelectInput struct {
	Profiles []domain.RiskProfile
	Settings domain.TrainerSettings
	// LastNudged maps HistoryKey -> when that category was last sent.
	LastNudged map[string]time.Time
	// Pending holds clients that already have a campaign awaiting dispatch.
	Pending map[string]bool
	// UsedToday counts campaigns already created for the trainer today.
	UsedToday int
	Now       time.Time
}

// Selection is the ranked, truncated outcome of a run.
type Selection struct {
	Candidates []domain.NudgeCandidate `json:"candidates"`
	Dropped    []Drop                  `json:"dropped"`
}

// Selector ranks actionable profiles against a trainer's daily budget.
type Selector struct {
	catalog *Catalog
}

// NewSelector creates a selector over the given template catalog.
func NewSelector(catalog *Catalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select filters, ranks and truncates profiles. It has no side effects.
func (s *Selector) Select(in SelectInput) Selection {
	var sel Selection
	var ranked []domain.NudgeCandidate

	for _, p := range in.Profiles {
		if !p.Actionable() {
			sel.Dropped = append(sel.Dropped, Drop{p.ClientID, DropIneligible})
			continue
		}
		if p.RiskScore < in.Settings.MinRiskThreshold {
			sel.Dropped = append(sel.Dropped, Drop{p.ClientID, DropBelowThreshold})
			continue
		}
		if in.Pending[p.ClientID] {
			sel.Dropped = append(sel.Dropped, Drop{p.ClientID, DropPending})
			continue
		}
		tpl, ok := s.catalog.Lookup(p.TemplateID(), p.RecommendedNudgeType)
		if !ok {
			sel.Dropped = append(sel.Dropped, Drop{p.ClientID, DropNoTemplate})
			continue
		}
		if !Allowed(tpl, in.LastNudged[HistoryKey(p.ClientID, p.RecommendedNudgeType)], in.Now) {
			sel.Dropped = append(sel.Dropped, Drop{p.ClientID, DropFrequencyCap})
			continue
		}
		ranked = append(ranked, domain.NudgeCandidate{
			RiskProfile:   p,
			TemplateID:    tpl.ID,
			PriorityScore: scoring.PriorityScore(p.RiskScore, p.UrgencyLevel),
		})
	}

	Rank(ranked)

	budget := in.Settings.DailyLimit - in.UsedToday
	if budget < 0 {
		budget = 0
	}
	if len(ranked) > budget {
		for _, c := range ranked[budget:] {
			sel.Dropped = append(sel.Dropped, Drop{c.ClientID, DropDailyLimit})
		}
		ranked = ranked[:budget]
	}
	sel.Candidates = ranked
	return sel
}

// Rank orders candidates by priority, then risk, then client ID.
func Rank(cs []domain.NudgeCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].PriorityScore != cs[j].PriorityScore {
			return cs[i].PriorityScore > cs[j].PriorityScore
		}
		if cs[i].RiskScore != cs[j].RiskScore {
			return cs[i].RiskScore > cs[j].RiskScore
		}
		return cs[i].ClientID < cs[j].ClientID
	})
}

// Allowed reports whether a nudge using tpl may go out given the last time
// its category was scheduled for the client.
func Allowed(tpl Template, lastNudged, now time.Time) bool {
	if lastNudged.IsZero() {
		return true
	}
	return now.Sub(lastNudged) >= tpl.MinInterval()
}
