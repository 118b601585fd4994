// ABOUTME: JSON REST API server for the Henk dashboard and provider callbacks
// ABOUTME: Wires repositories and provider clients from config and mounts the chi router
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/callhenk/henk-sub004/auth"
	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/config"
	"github.com/callhenk/henk-sub004/conversations"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/email"
	"github.com/callhenk/henk-sub004/salesforce"
	"github.com/callhenk/henk-sub004/supabase"
	"github.com/callhenk/henk-sub004/twilio"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ShutdownTimeout bounds how long in-flight requests may drain.
const ShutdownTimeout = 10 * time.Second

type Server struct {
	cfg        *config.Config
	db         *db.DB
	logger     *zap.Logger
	httpClient *http.Client
	verifier   *auth.Verifier

	businesses   *db.BusinessesRepository
	agents       *db.AgentsRepository
	campaigns    *db.CampaignsRepository
	leads        *db.LeadsRepository
	integrations *db.IntegrationsRepository
	documents    *db.DocumentsRepository

	// Optional providers, nil when not configured.
	elevenLabs *elevenlabs.Client
	oauth      *oauth2.Config
	oauthState *salesforce.StateCodec
	importer   *salesforce.Importer
	tokens     *twilio.TokenIssuer

	placer        *campaigns.Placer
	lifecycle     *campaigns.Lifecycle
	conversations *conversations.Service
	notifier      *email.Notifier
}

// NewServer builds a server. Providers whose credentials are missing in
// cfg stay disabled and their endpoints report "not configured".
func NewServer(cfg *config.Config, database *db.DB, logger *zap.Logger) *Server {
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	logger = logger.With(zap.String("component", "http"))

	s := &Server{
		cfg:          cfg,
		db:           database,
		logger:       logger,
		httpClient:   httpClient,
		verifier:     auth.NewVerifier(cfg.Supabase.JWTSecret),
		businesses:   db.NewBusinessesRepository(database),
		agents:       db.NewAgentsRepository(database),
		campaigns:    db.NewCampaignsRepository(database),
		leads:        db.NewLeadsRepository(database),
		integrations: db.NewIntegrationsRepository(database),
		documents:    db.NewDocumentsRepository(database),
		lifecycle:    campaigns.NewLifecycle(database),
	}

	if cfg.ElevenLabs.Enabled() {
		s.elevenLabs = elevenlabs.NewClient(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.BaseURL, httpClient)
	}
	var functions *supabase.Functions
	if cfg.EdgeFunctionsEnabled() {
		functions = supabase.NewFunctions(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, httpClient)
	}
	s.placer = campaigns.NewPlacer(database, campaigns.PlacerOptions{
		ElevenLabs:           s.elevenLabs,
		Functions:            functions,
		FunctionName:         cfg.Supabase.SimulateCallFunction,
		DefaultPhoneNumberID: cfg.ElevenLabs.PhoneNumberID,
	}, logger)
	s.conversations = conversations.NewService(database, s.elevenLabs, logger)

	if cfg.Salesforce.Enabled() {
		s.oauth = salesforce.NewOAuthConfig(cfg.Salesforce)
		s.oauthState = salesforce.NewStateCodec(cfg.Salesforce.ClientSecret)
		s.importer = salesforce.NewImporter(database, s.oauth, logger)
	}
	if cfg.Twilio.TokensEnabled() {
		s.tokens = &twilio.TokenIssuer{
			AccountSID:   cfg.Twilio.AccountSID,
			APIKeySID:    cfg.Twilio.APIKeySID,
			APIKeySecret: cfg.Twilio.APIKeySecret,
			TwiMLAppSID:  cfg.Twilio.TwiMLAppSID,
		}
	}

	var sender email.Sender
	if cfg.Resend.Enabled() {
		client, err := email.NewResendClient(cfg.Resend.APIKey, cfg.Resend.BaseURL, httpClient)
		if err != nil {
			logger.Error("email disabled", zap.Error(err))
		} else {
			sender = client
		}
	}
	s.notifier = email.NewNotifier(sender, cfg.Resend.From, cfg.Resend.NotificationEmail, logger)

	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.accessLog, s.recoverer, cors)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/grants/conversation-started", s.handleConversationStarted("grants"))
		api.Post("/demo/conversation-started", s.handleConversationStarted("demo"))
		api.Post("/webhooks/elevenlabs", s.handleElevenLabsWebhook)
		api.Get("/integrations/salesforce/callback", s.handleSalesforceCallback)
		api.With(s.twilioSignature).Post("/twilio/twiml", s.handleTwiML)
		api.With(s.twilioSignature).Post("/twilio/status", s.handleTwilioStatus)

		api.Group(func(p chi.Router) {
			p.Use(s.withAuth)

			p.Get("/campaigns", s.handleListCampaigns)
			p.Post("/campaigns", s.handleCreateCampaign)
			p.Post("/campaigns/simulate-call", s.handleSimulateCall)
			p.Get("/campaigns/{id}", s.handleGetCampaign)
			p.Put("/campaigns/{id}", s.handleUpdateCampaign)
			p.Delete("/campaigns/{id}", s.handleDeleteCampaign)
			p.Post("/campaigns/{id}/start", s.handleStartCampaign)
			p.Post("/campaigns/{id}/stop", s.handleStopCampaign)
			p.Get("/campaigns/{id}/leads", s.handleListCampaignLeads)
			p.Post("/campaigns/{id}/leads", s.handleAssignLeads)
			p.Get("/campaigns/{id}/stats", s.handleCampaignStats)

			p.Get("/leads", s.handleListLeads)
			p.Post("/leads", s.handleCreateLead)
			p.Get("/leads/{id}", s.handleGetLead)
			p.Put("/leads/{id}", s.handleUpdateLead)
			p.Delete("/leads/{id}", s.handleDeleteLead)

			p.Get("/agents", s.handleListAgents)
			p.Post("/agents", s.handleCreateAgent)
			p.Get("/agents/{id}", s.handleGetAgent)
			p.Put("/agents/{id}", s.handleUpdateAgent)
			p.Delete("/agents/{id}", s.handleDeleteAgent)

			p.Post("/elevenlabs-agent", s.handleLinkAgent)
			p.Get("/elevenlabs-agent/knowledge-base", s.handleListDocuments)
			p.Post("/elevenlabs-agent/knowledge-base", s.handleAddDocument)
			p.Delete("/elevenlabs-agent/knowledge-base/{docID}", s.handleDeleteDocument)
			p.Get("/elevenlabs-agent/{id}", s.handleGetRemoteAgent)
			p.Patch("/elevenlabs-agent/{id}", s.handlePushAgent)
			p.Delete("/elevenlabs-agent/{id}", s.handleUnlinkAgent)
			p.Get("/elevenlabs/conversations/{id}", s.handleGetConversation)

			p.Get("/integrations/salesforce/authorize", s.handleSalesforceAuthorize)
			p.Post("/integrations/salesforce/sync", s.handleSalesforceSync)

			p.Post("/twilio/token", s.handleTwilioToken)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ListenAndServe serves until ctx is cancelled, then drains for up to
// ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
