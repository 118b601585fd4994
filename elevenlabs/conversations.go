// ABOUTME: Conversation and outbound call endpoints
// ABOUTME: Fetches call records, lists phone numbers and places Twilio outbound calls
package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Conversation is the provider's conversation shape. Fields we do not use
// are dropped when decoding.
type Conversation struct {
	AgentID        string           `json:"agent_id"`
	ConversationID string           `json:"conversation_id"`
	Status         string           `json:"status"`
	Transcript     []TranscriptTurn `json:"transcript"`
	Metadata       Metadata         `json:"metadata"`
	Analysis       *Analysis        `json:"analysis,omitempty"`
	ClientData     *ClientData      `json:"conversation_initiation_client_data,omitempty"`

	// FailureReason is only set on call_initiation_failure events.
	FailureReason string `json:"failure_reason,omitempty"`
}

type TranscriptTurn struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

type Metadata struct {
	StartTimeUnixSecs int64 `json:"start_time_unix_secs"`
	CallDurationSecs  int   `json:"call_duration_secs"`
}

type Analysis struct {
	TranscriptSummary string `json:"transcript_summary"`
	CallSuccessful    string `json:"call_successful"`
}

// ClientData is echoed back on the conversation exactly as sent when the
// call was placed.
type ClientData struct {
	DynamicVariables map[string]any `json:"dynamic_variables,omitempty"`
}

// DynamicString returns a dynamic variable as a string, or "".
func (c *Conversation) DynamicString(key string) string {
	if c.ClientData == nil {
		return ""
	}
	s, _ := c.ClientData.DynamicVariables[key].(string)
	return s
}

// GetConversation returns the raw conversation document.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, "/v1/convai/conversations/"+url.PathEscape(conversationID), nil, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// PhoneNumber is a number imported into ElevenLabs.
type PhoneNumber struct {
	PhoneNumberID string `json:"phone_number_id"`
	PhoneNumber   string `json:"phone_number"`
	Label         string `json:"label"`
	Provider      string `json:"provider"`
}

// ListPhoneNumbers returns the workspace's imported phone numbers.
func (c *Client) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var numbers []PhoneNumber
	if err := c.doJSON(ctx, http.MethodGet, "/v1/convai/phone-numbers", nil, &numbers); err != nil {
		return nil, err
	}
	return numbers, nil
}

// OutboundCallRequest places a call from an agent through Twilio.
type OutboundCallRequest struct {
	AgentID       string      `json:"agent_id"`
	PhoneNumberID string      `json:"agent_phone_number_id"`
	ToNumber      string      `json:"to_number"`
	ClientData    *ClientData `json:"conversation_initiation_client_data,omitempty"`
}

type OutboundCallResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"callSid"`
}

// OutboundCall asks ElevenLabs to dial ToNumber. It is sent once.
func (c *Client) OutboundCall(ctx context.Context, req OutboundCallRequest) (*OutboundCallResponse, error) {
	var resp OutboundCallResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/convai/twilio/outbound-call", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
