// ABOUTME: Background worker that places calls for active campaigns
// ABOUTME: Claims due campaign leads each tick and dials them with bounded concurrency
package dialer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Caller places a single call.
type Caller interface {
	Place(ctx context.Context, req campaigns.CallRequest) (*campaigns.CallResult, error)
}

// Options tunes the worker. Zero values fall back to defaults.
type Options struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int

	// ClaimTimeout requeues leads left in_progress longer than this.
	// Zero disables requeueing.
	ClaimTimeout time.Duration
}

// Dialer works through active campaigns on an interval.
type Dialer struct {
	caller    Caller
	campaigns *db.CampaignsRepository
	agents    *db.AgentsRepository
	leads     *db.LeadsRepository
	lifecycle *campaigns.Lifecycle
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

func New(database *db.DB, caller Caller, opts Options, logger *zap.Logger) *Dialer {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Dialer{
		caller:    caller,
		campaigns: db.NewCampaignsRepository(database),
		agents:    db.NewAgentsRepository(database),
		leads:     db.NewLeadsRepository(database),
		lifecycle: campaigns.NewLifecycle(database),
		logger:    logger.With(zap.String("component", "dialer")),
		opts:      opts,
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled. The first tick runs immediately.
func (d *Dialer) Run(ctx context.Context) error {
	d.logger.Info("dialer started",
		zap.Duration("interval", d.opts.Interval),
		zap.Int("batch_size", d.opts.BatchSize),
		zap.Int("concurrency", d.opts.Concurrency),
		zap.Duration("claim_timeout", d.opts.ClaimTimeout))

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		if err := d.Tick(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("dialer tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dialer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick processes every active campaign once.
func (d *Dialer) Tick(ctx context.Context) error {
	active, err := d.campaigns.ListByStatus(ctx, models.CampaignActive)
	if err != nil {
		return fmt.Errorf("failed to list active campaigns: %w", err)
	}

	for i := range active {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c := &active[i]
		if err := d.processCampaign(ctx, c); err != nil {
			d.logger.Error("failed to process campaign",
				zap.String("campaign_id", c.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (d *Dialer) processCampaign(ctx context.Context, c *models.Campaign) error {
	now := d.now()
	log := d.logger.With(zap.String("campaign_id", c.ID.String()))

	if c.EndDate != nil && now.After(*c.EndDate) {
		log.Info("campaign end date passed, completing")
		return d.complete(ctx, c)
	}
	if !c.InCallWindow(now) {
		log.Debug("outside call window")
		return nil
	}
	if c.AgentID == nil {
		log.Warn("active campaign has no agent")
		return nil
	}

	agent, err := d.agents.Get(ctx, *c.AgentID)
	if err != nil {
		return fmt.Errorf("failed to load agent: %w", err)
	}

	if d.opts.ClaimTimeout > 0 {
		n, err := d.leads.RequeueStale(ctx, c.ID, now.Add(-d.opts.ClaimTimeout))
		if err != nil {
			return fmt.Errorf("failed to requeue stale leads: %w", err)
		}
		if n > 0 {
			log.Info("requeued stale claims", zap.Int("count", n))
		}
	}

	claimed, err := d.leads.ClaimDue(ctx, c.ID, c.MaxAttempts, d.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim leads: %w", err)
	}

	if len(claimed) == 0 {
		open, err := d.leads.CountOpen(ctx, c.ID, c.MaxAttempts)
		if err != nil {
			return fmt.Errorf("failed to count open leads: %w", err)
		}
		if open == 0 {
			log.Info("no callable leads left, completing")
			return d.complete(ctx, c)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for i := range claimed {
		item := &claimed[i]
		g.Go(func() error {
			d.dial(gctx, c, agent, item)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dialer) dial(ctx context.Context, c *models.Campaign, agent *models.Agent, item *db.CampaignLeadWithLead) {
	log := d.logger.With(
		zap.String("campaign_id", c.ID.String()),
		zap.String("lead_id", item.Lead.ID.String()),
		zap.Int("attempt", item.Attempts))

	_, err := d.caller.Place(ctx, campaigns.CallRequest{
		PhoneNumber: item.Lead.Phone,
		Agent:       agent,
		Campaign:    c,
		Lead:        &item.Lead,
	})
	if err == nil {
		return
	}

	log.Warn("call placement failed", zap.Error(err))
	if err := d.leads.RecordOutcome(context.WithoutCancel(ctx), c.ID, item.Lead.ID, models.CampaignLeadFailed, "error"); err != nil {
		log.Error("failed to mark lead failed", zap.Error(err))
	}
}

func (d *Dialer) complete(ctx context.Context, c *models.Campaign) error {
	err := d.lifecycle.Complete(ctx, c)
	if errors.Is(err, campaigns.ErrCompleted) {
		return nil
	}
	return err
}
