// ABOUTME: Applies provider callbacks to stored conversations
// ABOUTME: Handles ElevenLabs post-call and initiation-failure events and Twilio call status updates
package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/models"
	"github.com/callhenk/henk-sub004/twilio"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnresolvable means a callback matched no tenant. Callers acknowledge
// it so the provider stops redelivering.
var ErrUnresolvable = errors.New("callback does not match any conversation")

// Ingest applies one webhook delivery. Event types other than transcripts
// and initiation failures are ignored and return a nil conversation.
func (s *Service) Ingest(ctx context.Context, event *elevenlabs.WebhookEvent) (*models.Conversation, error) {
	switch event.Type {
	case elevenlabs.EventPostCallTranscription:
		return s.IngestTranscript(ctx, event)
	case elevenlabs.EventCallInitiationFailure:
		return s.IngestInitiationFailure(ctx, event)
	default:
		s.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
		return nil, nil
	}
}

// IngestTranscript stores a post-call transcription event. Other event
// types are ignored.
func (s *Service) IngestTranscript(ctx context.Context, event *elevenlabs.WebhookEvent) (*models.Conversation, error) {
	if event.Type != elevenlabs.EventPostCallTranscription {
		s.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
		return nil, nil
	}
	data := &event.Data

	conv, err := s.resolve(ctx, data)
	if err != nil {
		return nil, err
	}
	isNew := conv.CreatedAt.IsZero()

	applyTranscript(conv, data)

	if isNew {
		err = s.conversations.Create(ctx, conv)
	} else {
		err = s.conversations.Update(ctx, conv)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	s.settleLead(ctx, conv, leadStatusFor(conv))

	s.logger.Info("conversation transcript stored",
		zap.String("conversation_id", conv.ConversationID),
		zap.String("outcome", conv.Outcome),
		zap.Int("duration_seconds", conv.DurationSeconds))
	return conv, nil
}

// IngestInitiationFailure records a call that never connected and sends its
// campaign lead back to the retry pool.
func (s *Service) IngestInitiationFailure(ctx context.Context, event *elevenlabs.WebhookEvent) (*models.Conversation, error) {
	if event.Type != elevenlabs.EventCallInitiationFailure {
		return nil, nil
	}
	data := &event.Data

	conv, err := s.resolve(ctx, data)
	if err != nil {
		return nil, err
	}
	isNew := conv.CreatedAt.IsZero()

	if data.ConversationID != "" {
		conv.ConversationID = data.ConversationID
	}
	reason := strings.ToLower(data.FailureReason)
	switch reason {
	case "busy", "no-answer", "no_answer":
		conv.Status = models.ConversationNoAnswer
	default:
		conv.Status = models.ConversationFailed
	}
	if reason == "" {
		reason = "call_initiation_failure"
	}
	conv.Outcome = reason
	if conv.EndedAt == nil {
		ended := time.Now().UTC()
		conv.EndedAt = &ended
	}

	if isNew {
		err = s.conversations.Create(ctx, conv)
	} else {
		err = s.conversations.Update(ctx, conv)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	s.settleLead(ctx, conv, models.CampaignLeadFailed)

	s.logger.Info("call initiation failed",
		zap.String("conversation_id", conv.ConversationID),
		zap.String("reason", reason))
	return conv, nil
}

// resolve finds the row an event belongs to: by ElevenLabs id, then by
// the local id sent as a dynamic variable, then a new row owned by the
// agent's business.
func (s *Service) resolve(ctx context.Context, data *elevenlabs.Conversation) (*models.Conversation, error) {
	if data.ConversationID != "" {
		conv, err := s.conversations.GetByConversationID(ctx, data.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}

	if recordID, err := uuid.Parse(data.DynamicString("henk_conversation_id")); err == nil {
		conv, err := s.conversations.Get(ctx, recordID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}

	if data.AgentID == "" {
		return nil, ErrUnresolvable
	}
	agent, err := s.agents.FindByElevenLabsID(ctx, data.AgentID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUnresolvable
	}
	if err != nil {
		return nil, err
	}

	conv := &models.Conversation{
		BusinessID: agent.BusinessID,
		AgentID:    &agent.ID,
	}
	if id, err := uuid.Parse(data.DynamicString("henk_conversation_id")); err == nil {
		conv.ID = id
	}
	if id, err := uuid.Parse(data.DynamicString("campaign_id")); err == nil {
		conv.CampaignID = &id
	}
	if id, err := uuid.Parse(data.DynamicString("lead_id")); err == nil {
		conv.LeadID = &id
	}
	return conv, nil
}

func applyTranscript(conv *models.Conversation, data *elevenlabs.Conversation) {
	if data.ConversationID != "" {
		conv.ConversationID = data.ConversationID
	}

	conv.Transcript = make([]models.TranscriptTurn, 0, len(data.Transcript))
	for _, t := range data.Transcript {
		conv.Transcript = append(conv.Transcript, models.TranscriptTurn(t))
	}
	if data.Metadata.CallDurationSecs > 0 {
		conv.DurationSeconds = data.Metadata.CallDurationSecs
	}

	conv.Outcome = models.OutcomeUnknown
	if data.Analysis != nil {
		conv.Summary = data.Analysis.TranscriptSummary
		switch strings.ToLower(data.Analysis.CallSuccessful) {
		case models.OutcomeSuccess:
			conv.Outcome = models.OutcomeSuccess
		case models.OutcomeFailure:
			conv.Outcome = models.OutcomeFailure
		}
	}

	if data.Metadata.StartTimeUnixSecs > 0 {
		started := time.Unix(data.Metadata.StartTimeUnixSecs, 0).UTC()
		if conv.StartedAt == nil {
			conv.StartedAt = &started
		}
		ended := started.Add(time.Duration(conv.DurationSeconds) * time.Second)
		conv.EndedAt = &ended
	} else if conv.EndedAt == nil {
		ended := time.Now().UTC()
		conv.EndedAt = &ended
	}

	if data.Status == "failed" {
		conv.Status = models.ConversationFailed
	} else {
		conv.Status = models.ConversationCompleted
	}
}

func leadStatusFor(conv *models.Conversation) string {
	if conv.Status == models.ConversationCompleted {
		return models.CampaignLeadCompleted
	}
	return models.CampaignLeadFailed
}

// settleLead records the call outcome on the campaign assignment, if any.
// Results for an attempt older than the lead's latest claim are dropped.
func (s *Service) settleLead(ctx context.Context, conv *models.Conversation, status string) {
	if conv.CampaignID == nil || conv.LeadID == nil {
		return
	}
	outcome := conv.Outcome
	if outcome == "" {
		outcome = conv.Status
	}
	settled, err := s.leads.SettleAttempt(ctx, *conv.CampaignID, *conv.LeadID, conv.CreatedAt, status, outcome)
	if err == nil && !settled {
		s.logger.Info("ignoring result of superseded attempt",
			zap.String("campaign_id", conv.CampaignID.String()),
			zap.String("lead_id", conv.LeadID.String()),
			zap.String("conversation_id", conv.ConversationID))
		return
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Warn("failed to update campaign lead",
			zap.String("campaign_id", conv.CampaignID.String()),
			zap.String("lead_id", conv.LeadID.String()),
			zap.Error(err))
	}
}

// ApplyCallStatus records a Twilio status callback. Unknown statuses and
// unknown call SIDs are ignored.
func (s *Service) ApplyCallStatus(ctx context.Context, callSID, callStatus string, durationSeconds int) error {
	status := twilio.ConversationStatus(callStatus)
	if callSID == "" || status == "" {
		return nil
	}

	updated, err := s.conversations.UpdateCallStatus(ctx, callSID, status, durationSeconds)
	if errors.Is(err, db.ErrNotFound) {
		s.logger.Debug("status callback for unknown call", zap.String("call_sid", callSID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}
	if !updated {
		s.logger.Debug("status callback for finished call",
			zap.String("call_sid", callSID),
			zap.String("status", status))
		return nil
	}

	// Unanswered and failed calls go back to the dialer's retry pool.
	if status == models.ConversationNoAnswer || status == models.ConversationFailed {
		conv, err := s.conversations.GetByCallSID(ctx, callSID)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		conv.Outcome = status
		s.settleLead(ctx, conv, models.CampaignLeadFailed)
	}
	return nil
}
