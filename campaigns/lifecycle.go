// ABOUTME: Campaign lifecycle state machine
// ABOUTME: Validates and persists start, stop and completion transitions
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
)

var (
	ErrAlreadyActive = errors.New("campaign is already active")
	ErrNotActive     = errors.New("campaign is not currently active")
	ErrCompleted     = errors.New("campaign is completed")
	ErrNoAgent       = errors.New("campaign has no agent assigned")
)

// Activate moves a draft or paused campaign to active. The first start
// date is kept across pauses.
func Activate(c *models.Campaign, now time.Time) error {
	switch c.Status {
	case models.CampaignActive:
		return ErrAlreadyActive
	case models.CampaignCompleted:
		return ErrCompleted
	}
	if c.AgentID == nil {
		return ErrNoAgent
	}

	now = now.UTC()
	c.Status = models.CampaignActive
	if c.StartDate == nil {
		c.StartDate = &now
	}
	c.StoppedAt = nil
	return nil
}

// Pause moves an active campaign to paused.
func Pause(c *models.Campaign, now time.Time) error {
	if c.Status != models.CampaignActive {
		return ErrNotActive
	}
	now = now.UTC()
	c.Status = models.CampaignPaused
	c.StoppedAt = &now
	return nil
}

// Complete moves a campaign to the terminal completed state.
func Complete(c *models.Campaign, now time.Time) error {
	if c.Status == models.CampaignCompleted {
		return ErrCompleted
	}
	now = now.UTC()
	c.Status = models.CampaignCompleted
	if c.StoppedAt == nil {
		c.StoppedAt = &now
	}
	return nil
}

// Lifecycle applies transitions and persists them with a status guard.
type Lifecycle struct {
	campaigns *db.CampaignsRepository
	now       func() time.Time
}

func NewLifecycle(database *db.DB) *Lifecycle {
	return &Lifecycle{
		campaigns: db.NewCampaignsRepository(database),
		now:       time.Now,
	}
}

func (l *Lifecycle) Start(ctx context.Context, c *models.Campaign) error {
	return l.apply(ctx, c, Activate)
}

func (l *Lifecycle) Stop(ctx context.Context, c *models.Campaign) error {
	return l.apply(ctx, c, Pause)
}

func (l *Lifecycle) Complete(ctx context.Context, c *models.Campaign) error {
	return l.apply(ctx, c, Complete)
}

// apply runs transition on c and writes it only if the stored status is
// still the one c was loaded with. If another writer got there first the
// transition is re-evaluated against the fresh row once.
func (l *Lifecycle) apply(ctx context.Context, c *models.Campaign, transition func(*models.Campaign, time.Time) error) error {
	for attempt := 0; attempt < 2; attempt++ {
		next := *c
		if err := transition(&next, l.now()); err != nil {
			return err
		}

		err := l.campaigns.UpdateStatus(ctx, &next, c.Status)
		if err == nil {
			*c = next
			return nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("failed to update campaign status: %w", err)
		}

		fresh, err := l.campaigns.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		*c = *fresh
	}
	return fmt.Errorf("campaign %s changed concurrently", c.ID)
}
