package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/messaging"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	errs  map[string]error
	block bool
}

func (f *fakeSender) Send(ctx context.Context, cl *domain.Client, c *domain.ScheduledCampaign) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[cl.ID]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, c.ID)
	return "ext-" + c.ID, nil
}

func addCampaign(m *memRepo, clientID string, scheduledFor time.Time) *domain.ScheduledCampaign {
	c := &domain.ScheduledCampaign{
		TrainerID: "t1", ClientID: clientID, TemplateID: "check_in.low", Category: domain.NudgeCheckIn,
		Channel: domain.ChannelSMS, Content: "hi", ScheduledFor: scheduledFor,
		Status: domain.CampaignScheduled, CreatedAt: scheduledFor.Add(-2 * time.Hour),
	}
	if err := m.CreateCampaign(context.Background(), c); err != nil {
		panic(err)
	}
	return m.campaigns[len(m.campaigns)-1]
}

func newTestDispatcher(m *memRepo, s Sender) *Dispatcher {
	d := NewDispatcher(m, m, s, 10, 50*time.Millisecond)
	d.now = func() time.Time { return testNow }
	return d
}

func TestDispatchDue_SendsOnlyDueCampaigns(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	due := addCampaign(m, "c1", testNow.Add(-time.Minute))
	later := addCampaign(m, "c2", testNow.Add(time.Hour))
	sender := &fakeSender{}

	report, err := newTestDispatcher(m, sender).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Sent)

	assert.Equal(t, domain.CampaignSent, due.Status)
	assert.Equal(t, "ext-"+due.ID, due.ExternalID)
	require.NotNil(t, due.SentAt)
	assert.Equal(t, domain.CampaignScheduled, later.Status)
}

func TestDispatchDue_ConsentRecheck(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	c := addCampaign(m, "c4", testNow.Add(-time.Minute))
	sender := &fakeSender{}

	report, err := newTestDispatcher(m, sender).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.CampaignFailed, c.Status)
	assert.Equal(t, ReasonOptedOut, c.FailureReason)
	assert.Empty(t, sender.sent, "opted-out clients are never sent to")
}

func TestDispatchDue_MissingClient(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	gone := addCampaign(m, "c-deleted", testNow.Add(-time.Minute))
	ok := addCampaign(m, "c1", testNow.Add(-time.Minute))

	report, err := newTestDispatcher(m, &fakeSender{}).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonClientNotFound, gone.FailureReason)
	assert.Equal(t, domain.CampaignSent, ok.Status, "the pass continues past a missing client")
	assert.Equal(t, 1, report.Reasons[ReasonClientNotFound])
}

func TestDispatchDue_FailuresAreNotRetried(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	c1 := addCampaign(m, "c1", testNow.Add(-time.Minute))
	c2 := addCampaign(m, "c2", testNow.Add(-time.Minute))
	c3 := addCampaign(m, "c3", testNow.Add(-time.Minute))
	sender := &fakeSender{errs: map[string]error{
		"c1": errors.New("ghl send: status 500"),
		"c2": messaging.ErrOptedOut,
	}}
	d := newTestDispatcher(m, sender)

	report, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, ReasonSendError, c1.FailureReason)
	assert.Equal(t, ReasonOptedOut, c2.FailureReason)
	assert.Equal(t, domain.CampaignSent, c3.Status)

	again, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Due)
}

func TestDispatchDue_SendTimeout(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	c := addCampaign(m, "c1", testNow.Add(-time.Minute))

	report, err := newTestDispatcher(m, &fakeSender{block: true}).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, ReasonTimeout, c.FailureReason)
}

func TestDispatchDue_StoreErrors(t *testing.T) {
	m := newMemRepo()
	seed(m, 5)
	m.dueErr = errors.New("db down")
	_, err := newTestDispatcher(m, &fakeSender{}).DispatchDue(context.Background())
	assert.Error(t, err)

	m.dueErr = nil
	m.lookupErr = errors.New("db down")
	c := addCampaign(m, "c1", testNow.Add(-time.Minute))
	report, err := newTestDispatcher(m, &fakeSender{}).DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, domain.CampaignScheduled, c.Status, "left for the next pass")
}
