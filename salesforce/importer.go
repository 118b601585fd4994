// ABOUTME: Salesforce Contacts importer
// ABOUTME: Imports contacts into leads with deduplication by source id, then by email
package salesforce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrNotConnected is returned when the business has no Salesforce integration.
var ErrNotConnected = errors.New("salesforce is not connected")

// SyncResult counts what an import did.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ContactSource lists contacts for an org. *Client implements it.
type ContactSource interface {
	Contacts(ctx context.Context) ([]Contact, error)
}

// Importer turns Salesforce contacts into leads.
type Importer struct {
	leads        *db.LeadsRepository
	integrations *db.IntegrationsRepository
	oauth        *oauth2.Config
	logger       *zap.Logger

	// newSource builds the contact source for a connected org.
	newSource func(ctx context.Context, instanceURL string, ts oauth2.TokenSource) ContactSource
}

func NewImporter(database *db.DB, oauthConfig *oauth2.Config, logger *zap.Logger) *Importer {
	return &Importer{
		leads:        db.NewLeadsRepository(database),
		integrations: db.NewIntegrationsRepository(database),
		oauth:        oauthConfig,
		logger:       logger.With(zap.String("component", "salesforce")),
		newSource: func(ctx context.Context, instanceURL string, ts oauth2.TokenSource) ContactSource {
			return NewClient(instanceURL, oauth2.NewClient(ctx, ts))
		},
	}
}

// Sync imports all contacts of the business's connected org.
func (im *Importer) Sync(ctx context.Context, businessID uuid.UUID) (*SyncResult, error) {
	integration, err := im.integrations.Get(ctx, businessID, models.ProviderSalesforce)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}

	tok, err := TokenFromCredentials(integration.Credentials)
	if err != nil {
		return nil, ErrNotConnected
	}
	instanceURL := integration.Credentials[credInstanceURL]
	if instanceURL == "" {
		instanceURL = integration.Config[credInstanceURL]
	}
	if instanceURL == "" {
		return nil, fmt.Errorf("salesforce integration has no instance url")
	}

	ts := oauth2.ReuseTokenSource(tok, im.oauth.TokenSource(ctx, tok))
	contacts, err := im.newSource(ctx, instanceURL, ts).Contacts(ctx)
	if err != nil {
		_ = im.integrations.MarkSynced(ctx, integration.ID, models.IntegrationError, time.Now())
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}

	im.saveRefreshedToken(ctx, integration, tok, ts)

	result := &SyncResult{}
	for i := range contacts {
		action, err := im.importContact(ctx, businessID, &contacts[i])
		if err != nil {
			return result, fmt.Errorf("failed to import contact %s: %w", contacts[i].ID, err)
		}
		switch action {
		case actionCreated:
			result.Created++
		case actionUpdated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	if err := im.integrations.MarkSynced(ctx, integration.ID, models.IntegrationActive, time.Now()); err != nil {
		return result, fmt.Errorf("failed to record sync: %w", err)
	}

	im.logger.Info("salesforce sync finished",
		zap.String("business_id", businessID.String()),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// saveRefreshedToken persists the token if the source had to refresh it.
func (im *Importer) saveRefreshedToken(ctx context.Context, integration *models.Integration, old *oauth2.Token, ts oauth2.TokenSource) {
	current, err := ts.Token()
	if err != nil || current.AccessToken == old.AccessToken {
		return
	}

	creds := CredentialsFromToken(current)
	if creds[credInstanceURL] == "" {
		creds[credInstanceURL] = integration.Credentials[credInstanceURL]
	}
	if err := im.integrations.UpdateCredentials(ctx, integration.ID, creds); err != nil {
		im.logger.Warn("failed to save refreshed salesforce token", zap.Error(err))
	}
}

type importAction int

const (
	actionSkipped importAction = iota
	actionCreated
	actionUpdated
)

// importContact creates or fills in the lead for one contact.
func (im *Importer) importContact(ctx context.Context, businessID uuid.UUID, c *Contact) (importAction, error) {
	email := normalizeEmail(c.Email)
	phone := strings.TrimSpace(c.BestPhone())
	if email == "" && phone == "" {
		return actionSkipped, nil
	}

	existing, err := im.findExisting(ctx, businessID, c.ID, email)
	if err != nil {
		return actionSkipped, err
	}

	if existing == nil {
		lead := &models.Lead{
			BusinessID: businessID,
			FirstName:  c.FirstName,
			LastName:   c.LastName,
			Email:      email,
			Phone:      phone,
			Company:    c.AccountName(),
			Source:     models.SourceSalesforce,
			SourceID:   c.ID,
			DoNotCall:  c.DoNotCall,
		}
		if err := im.leads.Create(ctx, lead); err != nil {
			return actionSkipped, fmt.Errorf("failed to create lead: %w", err)
		}
		return actionCreated, nil
	}

	// Only fill gaps; never overwrite what the team edited locally
	updated := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			updated = true
		}
	}
	fill(&existing.FirstName, c.FirstName)
	fill(&existing.LastName, c.LastName)
	fill(&existing.Email, email)
	fill(&existing.Phone, phone)
	fill(&existing.Company, c.AccountName())

	if c.DoNotCall && !existing.DoNotCall {
		existing.DoNotCall = true
		updated = true
	}
	if existing.SourceID == "" {
		existing.Source = models.SourceSalesforce
		existing.SourceID = c.ID
		updated = true
	}

	if !updated {
		return actionSkipped, nil
	}
	if err := im.leads.Update(ctx, existing); err != nil {
		return actionSkipped, fmt.Errorf("failed to update lead: %w", err)
	}
	return actionUpdated, nil
}

func (im *Importer) findExisting(ctx context.Context, businessID uuid.UUID, sourceID, email string) (*models.Lead, error) {
	lead, err := im.leads.FindBySource(ctx, businessID, models.SourceSalesforce, sourceID)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	if email == "" {
		return nil, nil
	}
	lead, err = im.leads.FindByEmail(ctx, businessID, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return lead, err
}

// normalizeEmail converts email to lowercase for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
