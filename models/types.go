// ABOUTME: Data models for Henk tenants, agents, campaigns, leads and conversations
// ABOUTME: Defines row shapes plus the status and role constants the API branches on
package models

import (
	"time"

	"github.com/google/uuid"
)

type Business struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TeamMember struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Team member roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Team member statuses.
const (
	MemberActive    = "active"
	MemberInvited   = "invited"
	MemberSuspended = "suspended"
)

// IsActive reports whether the membership grants any access.
func (m *TeamMember) IsActive() bool {
	return m != nil && m.Status == MemberActive
}

// CanMutate reports whether the member may create or change agents,
// campaigns, leads and integrations.
func (m *TeamMember) CanMutate() bool {
	return m.IsActive() && m.Role != RoleViewer
}

type Agent struct {
	ID                uuid.UUID `json:"id"`
	BusinessID        uuid.UUID `json:"business_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	VoiceID           string    `json:"voice_id,omitempty"`
	Language          string    `json:"language,omitempty"`
	FirstMessage      string    `json:"first_message,omitempty"`
	SystemPrompt      string    `json:"system_prompt,omitempty"`
	KnowledgeBaseIDs  []string  `json:"knowledge_base_ids"`
	ElevenLabsAgentID string    `json:"elevenlabs_agent_id,omitempty"`
	CallerID          string    `json:"caller_id,omitempty"`
	Status            string    `json:"status"`
	CreatedBy         string    `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Agent statuses.
const (
	AgentActive   = "active"
	AgentInactive = "inactive"
)

type Campaign struct {
	ID              uuid.UUID  `json:"id"`
	BusinessID      uuid.UUID  `json:"business_id"`
	AgentID         *uuid.UUID `json:"agent_id,omitempty"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	CallerID        string     `json:"caller_id,omitempty"`
	MaxAttempts     int        `json:"max_attempts"`
	CallWindowStart string     `json:"call_window_start"`
	CallWindowEnd   string     `json:"call_window_end"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Campaign statuses.
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
)

// Campaign defaults applied on create.
const (
	DefaultMaxAttempts     = 3
	DefaultCallWindowStart = "09:00"
	DefaultCallWindowEnd   = "17:00"
)

// ApplyDefaults fills zero-valued scheduling fields.
func (c *Campaign) ApplyDefaults() {
	if c.Status == "" {
		c.Status = CampaignDraft
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.CallWindowStart == "" {
		c.CallWindowStart = DefaultCallWindowStart
	}
	if c.CallWindowEnd == "" {
		c.CallWindowEnd = DefaultCallWindowEnd
	}
}

// InCallWindow reports whether t's wall clock falls in [start, end).
// An unparsable window is treated as always open.
func (c *Campaign) InCallWindow(t time.Time) bool {
	start, err1 := time.Parse("15:04", c.CallWindowStart)
	end, err2 := time.Parse("15:04", c.CallWindowEnd)
	if err1 != nil || err2 != nil {
		return true
	}

	minutes := t.Hour()*60 + t.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()

	if from <= to {
		return minutes >= from && minutes < to
	}
	// Window wraps midnight
	return minutes >= from || minutes < to
}

type Lead struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Company    string    `json:"company,omitempty"`
	Source     string    `json:"source"`
	SourceID   string    `json:"source_id,omitempty"`
	DoNotCall  bool      `json:"do_not_call"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	if l.LastName == "" {
		return l.FirstName
	}
	if l.FirstName == "" {
		return l.LastName
	}
	return l.FirstName + " " + l.LastName
}

// Lead sources.
const (
	SourceManual     = "manual"
	SourceSalesforce = "salesforce"
	SourceImport     = "import"
)

// Lead statuses.
const (
	LeadNew       = "new"
	LeadContacted = "contacted"
	LeadPledged   = "pledged"
	LeadDonated   = "donated"
	LeadDoNotCall = "do_not_call"
)

type CampaignLead struct {
	CampaignID    uuid.UUID  `json:"campaign_id"`
	LeadID        uuid.UUID  `json:"lead_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	Outcome       string     `json:"outcome,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Campaign lead statuses.
const (
	CampaignLeadPending    = "pending"
	CampaignLeadInProgress = "in_progress"
	CampaignLeadContacted  = "contacted"
	CampaignLeadCompleted  = "completed"
	CampaignLeadFailed     = "failed"
	CampaignLeadDoNotCall  = "do_not_call"
)

// CampaignStats summarizes a campaign for the analytics view.
type CampaignStats struct {
	CampaignID        uuid.UUID      `json:"campaign_id"`
	LeadsByStatus     map[string]int `json:"leads_by_status"`
	TotalLeads        int            `json:"total_leads"`
	Conversations     int            `json:"conversations"`
	TotalTalkSeconds  int            `json:"total_talk_seconds"`
	SuccessfulOutcome int            `json:"successful_outcomes"`
}

type Conversation struct {
	ID              uuid.UUID        `json:"id"`
	BusinessID      uuid.UUID        `json:"business_id"`
	CampaignID      *uuid.UUID       `json:"campaign_id,omitempty"`
	AgentID         *uuid.UUID       `json:"agent_id,omitempty"`
	LeadID          *uuid.UUID       `json:"lead_id,omitempty"`
	ConversationID  string           `json:"conversation_id,omitempty"`
	CallSID         string           `json:"call_sid,omitempty"`
	Status          string           `json:"status"`
	Transcript      []TranscriptTurn `json:"transcript"`
	Summary         string           `json:"summary,omitempty"`
	DurationSeconds int              `json:"duration_seconds"`
	Outcome         string           `json:"outcome,omitempty"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	EndedAt         *time.Time       `json:"ended_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TranscriptTurn is one utterance in a call transcript.
type TranscriptTurn struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

// Conversation statuses.
const (
	ConversationInitiated  = "initiated"
	ConversationInProgress = "in_progress"
	ConversationCompleted  = "completed"
	ConversationFailed     = "failed"
	ConversationNoAnswer   = "no_answer"
)

// ConversationTerminal reports whether a call in status has finished.
func ConversationTerminal(status string) bool {
	switch status {
	case ConversationCompleted, ConversationFailed, ConversationNoAnswer:
		return true
	}
	return false
}

// Conversation outcomes, mirroring the provider's call_successful field.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown"
)

// KnowledgeDocument records which business owns an ElevenLabs knowledge
// base document. The workspace is shared by every tenant.
type KnowledgeDocument struct {
	DocumentID string    `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Name       string    `json:"name"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Integration struct {
	ID          uuid.UUID         `json:"id"`
	BusinessID  uuid.UUID         `json:"business_id"`
	Provider    string            `json:"provider"`
	Status      string            `json:"status"`
	Credentials map[string]string `json:"-"`
	Config      map[string]string `json:"config,omitempty"`
	LastSyncAt  *time.Time        `json:"last_sync_at,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Integration providers.
const (
	ProviderSalesforce = "salesforce"
)

// Integration statuses.
const (
	IntegrationActive   = "active"
	IntegrationInactive = "inactive"
	IntegrationError    = "error"
)
