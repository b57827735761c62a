package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/coach-nudge/internal/ai"
	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/drafts"
	"github.com/ignite/coach-nudge/internal/nudge"
	"github.com/ignite/coach-nudge/internal/scoring"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func ago(days float64) time.Time {
	return testNow.Add(-time.Duration(days * 24 * float64(time.Hour)))
}

// seed creates one trainer with four clients:
//
//	c1 Ana  10 days silent, last booked 40 days ago, 1 of 2 sessions missed -> 83
//	c2 Ben  never messaged or booked                                      -> 85
//	c3 Cy   active: 4 recent messages, booked 3 days ago                  -> 23
//	c4 Dee  opted out
func seed(m *memRepo, dailyLimit int) {
	m.settings["t1"] = &domain.TrainerSettings{
		TrainerID: "t1", TrainerName: "Sam", Enabled: true, DailyLimit: dailyLimit,
		MinRiskThreshold: 20, Timezone: "UTC", Channel: domain.ChannelSMS,
	}
	m.clients["c1"] = domain.Client{ID: "c1", TrainerID: "t1", FirstName: "Ana", ConsentStatus: domain.ConsentActive}
	m.clients["c2"] = domain.Client{ID: "c2", TrainerID: "t1", FirstName: "Ben", ConsentStatus: domain.ConsentActive}
	m.clients["c3"] = domain.Client{ID: "c3", TrainerID: "t1", FirstName: "Cy", ConsentStatus: domain.ConsentActive}
	m.clients["c4"] = domain.Client{ID: "c4", TrainerID: "t1", FirstName: "Dee", ConsentStatus: domain.ConsentOptedOut}

	m.lastOutbound["c1"] = ago(10)
	m.bookings["c1"] = []domain.Booking{
		{ID: "b1", ClientID: "c1", ScheduledAt: ago(45), Status: domain.BookingCompleted},
		{ID: "b2", ClientID: "c1", ScheduledAt: ago(40), Status: domain.BookingNoShow},
	}

	m.lastOutbound["c3"] = ago(5)
	m.messages["c3"] = []domain.Message{
		{ID: "m1", ClientID: "c3", Direction: "outbound", CreatedAt: ago(5)},
		{ID: "m2", ClientID: "c3", Direction: "inbound", CreatedAt: ago(6)},
		{ID: "m3", ClientID: "c3", Direction: "inbound", CreatedAt: ago(7)},
		{ID: "m4", ClientID: "c3", Direction: "inbound", CreatedAt: ago(8)},
	}
	m.bookings["c3"] = []domain.Booking{{ID: "b3", ClientID: "c3", ScheduledAt: ago(3), Status: domain.BookingCompleted}}
}

type memSink struct{ reports []domain.RunReport }

func (s *memSink) SaveRunReport(ctx context.Context, r domain.RunReport) error {
	s.reports = append(s.reports, r)
	return nil
}

type fakeDrafter struct{ err error }

func (f fakeDrafter) Draft(ctx context.Context, req drafts.Request) (drafts.Draft, error) {
	if f.err != nil {
		return drafts.Draft{}, f.err
	}
	return drafts.Draft{Content: "AI: " + req.Template, Source: drafts.SourceAI}, nil
}

func newTestRunner(t *testing.T, m *memRepo, sink ReportSink, drafter Drafter, fallback bool) *Runner {
	t.Helper()
	catalog, err := nudge.NewCatalog()
	require.NoError(t, err)
	r := NewRunner(RunnerDeps{
		Settings: m, Clients: m, Profiles: m, Campaigns: m, History: m,
		Catalog: catalog, Drafter: drafter, Sink: sink,
	}, RunnerConfig{
		Policy:             scoring.DefaultPolicy(),
		Defaults:           domain.TrainerSettings{Enabled: true, DailyLimit: 1, Channel: domain.ChannelSMS, Timezone: "UTC"},
		SendOffset:         2 * time.Hour,
		FallbackToTemplate: fallback,
	})
	r.now = func() time.Time { return testNow }
	return r
}

func TestRunOnce_SchedulesRankedCandidates(t *testing.T) {
	m := newMemRepo()
	seed(m, 2)
	sink := &memSink{}
	r := newTestRunner(t, m, sink, nil, false)

	report, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Collected)
	assert.Equal(t, 3, report.Scored)
	assert.Equal(t, 3, report.Eligible)
	assert.Equal(t, 2, report.Selected)
	assert.Equal(t, 2, report.Scheduled)
	assert.Equal(t, 1, report.Dropped[string(nudge.DropDailyLimit)])
	assert.Equal(t, 1, report.Suppressed)
	require.Len(t, sink.reports, 1)
	assert.Equal(t, report.RunID, sink.reports[0].RunID)

	p := m.profiles["c1"]
	assert.Equal(t, 83, p.RiskScore)
	assert.Equal(t, domain.EligibilityHigh, p.Eligibility)
	assert.Equal(t, domain.NudgeBookingReminder, p.RecommendedNudgeType)
	assert.Equal(t, 5, p.UrgencyLevel)
	assert.Equal(t, 85, m.profiles["c2"].RiskScore)
	assert.Equal(t, 23, m.profiles["c3"].RiskScore)
	_, scored := m.profiles["c4"]
	assert.False(t, scored, "opted-out clients are never scored")

	cs := m.campaignsFor("c1")
	require.Len(t, cs, 1)
	assert.Equal(t, "booking_reminder.high", cs[0].TemplateID)
	assert.Equal(t, domain.CampaignScheduled, cs[0].Status)
	assert.Equal(t, testNow.Add(2*time.Hour), cs[0].ScheduledFor)
	assert.Equal(t, 133, cs[0].PriorityScore)
	assert.Contains(t, cs[0].Content, "Hi Ana")
	assert.Contains(t, cs[0].Content, "40 days")
	assert.Empty(t, m.campaignsFor("c3"))
}

func TestRunOnce_RerunIsIdempotent(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	r := newTestRunner(t, m, nil, nil, false)

	first, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Scheduled)
	before := map[string]domain.RiskProfile{}
	for k, v := range m.profiles {
		before[k] = v
	}

	second, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Scheduled)
	assert.Equal(t, 3, second.Dropped[string(nudge.DropPending)])
	assert.Equal(t, before, m.profiles, "one identical profile row per client")
	assert.Len(t, m.campaigns, 3)
}

func TestRunOnce_FrequencyGuardAfterSend(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	r := newTestRunner(t, m, nil, nil, false)

	_, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	for _, c := range m.campaigns {
		require.NoError(t, m.MarkSent(context.Background(), c.ID, "ext", testNow))
	}

	r.now = func() time.Time { return testNow.Add(24 * time.Hour) }
	report, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scheduled)
	assert.Equal(t, 3, report.Dropped[string(nudge.DropFrequencyCap)])

	r.now = func() time.Time { return testNow.Add(8 * 24 * time.Hour) }
	report, err = r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Positive(t, report.Scheduled, "the weekly cap expires")
}

func TestRunOnce_FailedCampaignsRescheduleNextDay(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	r := newTestRunner(t, m, nil, nil, false)

	first, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, 3, first.Scheduled)
	for _, c := range m.campaigns {
		require.NoError(t, m.MarkFailed(context.Background(), c.ID, "send_error", testNow))
	}

	r.now = func() time.Time { return testNow.Add(24 * time.Hour) }
	report, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scheduled)
	assert.Zero(t, report.Dropped[string(nudge.DropFrequencyCap)])
	assert.Len(t, m.campaigns, 6)
}

func TestRunOnce_DisabledTrainerIsSkipped(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	m.settings["t1"].Enabled = false
	r := newTestRunner(t, m, nil, nil, false)

	report, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "disabled", report.Skipped)
	assert.Equal(t, 0, m.upserts)
	assert.Empty(t, m.campaigns)
}

func TestRunOnce_DefaultSettings(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	delete(m.settings, "t1")
	r := newTestRunner(t, m, nil, nil, false)

	report, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scheduled)
	assert.Len(t, m.campaignsFor("c2"), 1, "highest priority wins the single slot")
}

func TestRunOnce_CollectFailureAborts(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	m.collectErr = errors.New("connection refused")
	sink := &memSink{}
	r := newTestRunner(t, m, sink, nil, false)

	_, err := r.RunOnce(context.Background(), "t1")
	require.Error(t, err)
	assert.Empty(t, m.campaigns)
	assert.Equal(t, 0, m.upserts)
	require.Len(t, sink.reports, 1)
	assert.Contains(t, sink.reports[0].Error, "connection refused")
}

func TestRunOnce_DraftFailures(t *testing.T) {
	tests := []struct {
		name          string
		fallback      bool
		wantScheduled int
	}{
		{"skip client", false, 0},
		{"fall back to template", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMemRepo()
			seed(m, 5)
			r := newTestRunner(t, m, nil, fakeDrafter{err: ai.ErrRateLimited}, tt.fallback)

			report, err := r.RunOnce(context.Background(), "t1")
			require.NoError(t, err)
			assert.Equal(t, 3, report.DraftFailures)
			assert.Equal(t, tt.wantScheduled, report.Scheduled)
			for _, c := range m.campaigns {
				assert.NotContains(t, c.Content, "AI:")
			}
		})
	}
}

func TestRunOnce_UsesDrafter(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	r := newTestRunner(t, m, nil, fakeDrafter{}, false)

	_, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	cs := m.campaignsFor("c2")
	require.Len(t, cs, 1)
	assert.Contains(t, cs[0].Content, "AI: Hi Ben")
}

func TestRunOnce_CampaignWriteFailureContinues(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	m.createErr["c1"] = errors.New("deadlock detected")
	r := newTestRunner(t, m, nil, nil, false)

	report, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scheduled)
	assert.Equal(t, 1, report.WriteFailures)
}

func TestRunOnce_QuietHours(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	m.settings["t1"].QuietHoursStart = 13
	m.settings["t1"].QuietHoursEnd = 16
	r := newTestRunner(t, m, nil, nil, false)

	_, err := r.RunOnce(context.Background(), "t1")
	require.NoError(t, err)
	for _, c := range m.campaigns {
		assert.Equal(t, time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC), c.ScheduledFor)
	}
}

func TestDraftFor(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	r := newTestRunner(t, m, nil, nil, false)

	res, err := r.DraftFor(context.Background(), "t1", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, 83, res.Profile.RiskScore)
	assert.Equal(t, drafts.SourceTemplate, res.Draft.Source)
	assert.Contains(t, res.Draft.Content, "Ana")

	_, err = r.DraftFor(context.Background(), "t1", "c4", domain.ChannelEmail)
	assert.True(t, errors.Is(err, ErrNotFound), "opted-out clients cannot be drafted for")

	m.settings["t1"].Enabled = false
	_, err = r.DraftFor(context.Background(), "t1", "c1", "")
	assert.True(t, errors.Is(err, ErrTrainerDisabled))
}
