package dialer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

// fakeCaller records placements and tracks the peak number in flight.
type fakeCaller struct {
	mu       sync.Mutex
	err      error
	delay    time.Duration
	calls    []campaigns.CallRequest
	inFlight int
	peak     int
}

func (f *fakeCaller) Place(ctx context.Context, req campaigns.CallRequest) (*campaigns.CallResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &campaigns.CallResult{ConversationID: "conv_" + req.Lead.ID.String(), Via: campaigns.ViaElevenLabs}, nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	db       *db.DB
	campaign *models.Campaign
	leads    []uuid.UUID
}

func setup(t *testing.T, leadCount int, mutate func(c *models.Campaign)) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d, nil))

	b := &models.Business{Name: "Hope"}
	require.NoError(t, db.NewBusinessesRepository(d).Create(ctx, b))
	agent := &models.Agent{BusinessID: b.ID, Name: "Caller", ElevenLabsAgentID: "el-agent"}
	require.NoError(t, db.NewAgentsRepository(d).Create(ctx, agent))

	c := &models.Campaign{
		BusinessID:      b.ID,
		Name:            "Spring",
		AgentID:         &agent.ID,
		Status:          models.CampaignActive,
		MaxAttempts:     2,
		CallWindowStart: "00:00",
		CallWindowEnd:   "23:59",
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, db.NewCampaignsRepository(d).Create(ctx, c))

	leads := db.NewLeadsRepository(d)
	var ids []uuid.UUID
	for i := 0; i < leadCount; i++ {
		l := &models.Lead{BusinessID: b.ID, FirstName: "Donor", Phone: "+1555010200" + string(rune('0'+i))}
		require.NoError(t, leads.Create(ctx, l))
		ids = append(ids, l.ID)
	}
	_, err = leads.AssignToCampaign(ctx, c.ID, ids)
	require.NoError(t, err)

	return &fixture{db: d, campaign: c, leads: ids}
}

func (f *fixture) dialer(caller Caller, opts Options, now time.Time) *Dialer {
	d := New(f.db, caller, opts, zap.NewNop())
	d.now = func() time.Time { return now }
	return d
}

func (f *fixture) status(t *testing.T) string {
	t.Helper()
	c, err := db.NewCampaignsRepository(f.db).Get(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	return c.Status
}

func noon() time.Time {
	return time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
}

func TestTickPlacesCallsWithinConcurrency(t *testing.T) {
	f := setup(t, 6, nil)
	caller := &fakeCaller{delay: 20 * time.Millisecond}
	d := f.dialer(caller, Options{BatchSize: 4, Concurrency: 2}, noon())

	require.NoError(t, d.Tick(context.Background()))
	assert.Equal(t, 4, caller.count())
	assert.LessOrEqual(t, caller.peak, 2)

	require.NoError(t, d.Tick(context.Background()))
	assert.Equal(t, 6, caller.count())

	// Everything is in flight, so the campaign stays active
	require.NoError(t, d.Tick(context.Background()))
	assert.Equal(t, 6, caller.count())
	assert.Equal(t, models.CampaignActive, f.status(t))

	for _, req := range caller.calls {
		require.NotNil(t, req.Campaign)
		assert.Equal(t, f.campaign.ID, req.Campaign.ID)
		assert.False(t, req.AllowFallback)
	}
}

func TestTickNeverExceedsMaxAttempts(t *testing.T) {
	f := setup(t, 1, nil)
	caller := &fakeCaller{err: errors.New("carrier unavailable")}
	d := f.dialer(caller, Options{}, noon())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, d.Tick(ctx))
	}
	assert.Equal(t, 2, caller.count())

	cl, err := db.NewLeadsRepository(f.db).GetCampaignLead(ctx, f.campaign.ID, f.leads[0])
	require.NoError(t, err)
	assert.Equal(t, models.CampaignLeadFailed, cl.Status)
	assert.Equal(t, 2, cl.Attempts)
	assert.Equal(t, models.CampaignCompleted, f.status(t))
}

func TestTickCompletesPastEndDate(t *testing.T) {
	yesterday := noon().Add(-24 * time.Hour)
	f := setup(t, 2, func(c *models.Campaign) { c.EndDate = &yesterday })
	caller := &fakeCaller{}

	require.NoError(t, f.dialer(caller, Options{}, noon()).Tick(context.Background()))
	assert.Equal(t, 0, caller.count())
	assert.Equal(t, models.CampaignCompleted, f.status(t))
}

func TestTickSkipsOutsideCallWindow(t *testing.T) {
	f := setup(t, 2, func(c *models.Campaign) {
		c.CallWindowStart = "09:00"
		c.CallWindowEnd = "17:00"
	})
	caller := &fakeCaller{}
	evening := time.Date(2026, 3, 2, 20, 0, 0, 0, time.Local)

	require.NoError(t, f.dialer(caller, Options{}, evening).Tick(context.Background()))
	assert.Equal(t, 0, caller.count())
	assert.Equal(t, models.CampaignActive, f.status(t))
}

func TestTickIgnoresInactiveCampaigns(t *testing.T) {
	f := setup(t, 2, func(c *models.Campaign) { c.Status = models.CampaignPaused })
	caller := &fakeCaller{}

	require.NoError(t, f.dialer(caller, Options{}, noon()).Tick(context.Background()))
	assert.Equal(t, 0, caller.count())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := setup(t, 1, nil)
	caller := &fakeCaller{}
	d := f.dialer(caller, Options{Interval: 10 * time.Millisecond}, noon())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return caller.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dialer did not stop")
	}
}

func TestTickRequeuesStaleClaims(t *testing.T) {
	f := setup(t, 1, nil)
	caller := &fakeCaller{}
	d := f.dialer(caller, Options{ClaimTimeout: 30 * time.Minute}, noon())
	ctx := context.Background()

	backdate := func() {
		_, err := f.db.ExecContext(ctx, f.db.Rebind(`UPDATE campaign_leads SET last_attempt_at = ? WHERE campaign_id = ?`),
			noon().Add(-time.Hour).UTC(), f.campaign.ID.String())
		require.NoError(t, err)
	}

	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 1, caller.count())

	// A fresh claim is left alone
	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 1, caller.count())
	assert.Equal(t, models.CampaignActive, f.status(t))

	backdate()
	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 2, caller.count())

	// Out of attempts: the stale claim is settled and the campaign completes
	backdate()
	require.NoError(t, d.Tick(ctx))
	assert.Equal(t, 2, caller.count())

	cl, err := db.NewLeadsRepository(f.db).GetCampaignLead(ctx, f.campaign.ID, f.leads[0])
	require.NoError(t, err)
	assert.Equal(t, models.CampaignLeadFailed, cl.Status)
	assert.Equal(t, db.OutcomeTimedOut, cl.Outcome)
	assert.Equal(t, 2, cl.Attempts)
	assert.Equal(t, models.CampaignCompleted, f.status(t))
}
