// ABOUTME: Tests for the ElevenLabs client against an httptest fake
// ABOUTME: Covers auth headers, error mapping, outbound calls, agents, documents and webhooks
package elevenlabs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/callhenk/henk-sub004/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("xi-test", srv.URL, srv.Client())
}

func TestGetConversation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xi-test", r.Header.Get("xi-api-key"))
		assert.Equal(t, "/v1/convai/conversations/conv_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"conversation_id":"conv_1","status":"done"}`))
	})

	raw, err := c.GetConversation(t.Context(), "conv_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversation_id":"conv_1","status":"done"}`, string(raw))
}

func TestNotFoundDetection(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"plain 404", http.StatusNotFound, `{"detail":"missing"}`, true},
		{"history not found detail", http.StatusBadRequest, `{"detail":{"status":"conversation_history_not_found"}}`, true},
		{"server error", http.StatusInternalServerError, `boom`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetConversation(t.Context(), "conv_x")
			require.Error(t, err)
			assert.Equal(t, tt.want, IsNotFound(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}

	assert.False(t, IsNotFound(io.EOF))
}

func TestOutboundCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/convai/twilio/outbound-call", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "el-agent", body["agent_id"])
		assert.Equal(t, "phnum_1", body["agent_phone_number_id"])
		assert.Equal(t, "+15550102000", body["to_number"])

		_, _ = w.Write([]byte(`{"success":true,"conversation_id":"conv_9","callSid":"CA9"}`))
	})

	resp, err := c.OutboundCall(t.Context(), OutboundCallRequest{
		AgentID:       "el-agent",
		PhoneNumberID: "phnum_1",
		ToNumber:      "+15550102000",
		ClientData:    &ClientData{DynamicVariables: map[string]any{"lead_name": "Ada"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "conv_9", resp.ConversationID)
	assert.Equal(t, "CA9", resp.CallSID)
}

func TestListPhoneNumbers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"phone_number_id":"phnum_1","phone_number":"+15550102000","label":"Main"}]`))
	})

	numbers, err := c.ListPhoneNumbers(t.Context())
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, "phnum_1", numbers[0].PhoneNumberID)
}

func TestCreateAgentFromLocalAgent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convai/agents/create", r.URL.Path)

		var cfg AgentConfig
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
		assert.Equal(t, "Spring Appeal", cfg.Name)
		assert.Equal(t, "Hi, this is Henk", cfg.ConversationConfig.Agent.FirstMessage)
		require.NotNil(t, cfg.ConversationConfig.TTS)
		assert.Equal(t, "voice-1", cfg.ConversationConfig.TTS.VoiceID)
		require.Len(t, cfg.ConversationConfig.Agent.Prompt.KnowledgeBase, 1)
		assert.Equal(t, "doc-1", cfg.ConversationConfig.Agent.Prompt.KnowledgeBase[0].ID)

		_, _ = w.Write([]byte(`{"agent_id":"el-new"}`))
	})

	id, err := c.CreateAgent(t.Context(), ConfigFromAgent(&models.Agent{
		Name:             "Spring Appeal",
		FirstMessage:     "Hi, this is Henk",
		SystemPrompt:     "You raise funds politely.",
		VoiceID:          "voice-1",
		Language:         "en",
		KnowledgeBaseIDs: []string{"doc-1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "el-new", id)
}

func TestUploadDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convai/knowledge-base/file", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "faq.txt", header.Filename)
		assert.Equal(t, "We plant trees.", string(content))

		_, _ = w.Write([]byte(`{"id":"doc-7","name":"faq.txt"}`))
	})

	doc, err := c.UploadDocument(t.Context(), "faq.txt", strings.NewReader("We plant trees."))
	require.NoError(t, err)
	assert.Equal(t, "doc-7", doc.ID)
}

func TestDeleteDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/convai/knowledge-base/doc-7", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteDocument(t.Context(), "doc-7"))
}

func TestFilterDocuments(t *testing.T) {
	raw := json.RawMessage(`{"documents":[{"id":"doc-1","name":"FAQ"},{"id":"doc-2","name":"Other tenant"}],"has_more":false}`)

	docs, err := FilterDocuments(raw, func(id string) bool { return id == "doc-1" })
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"id":"doc-1","name":"FAQ"}`, string(docs[0]))

	_, err = FilterDocuments(json.RawMessage(`[]`), func(string) bool { return true })
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"post_call_transcription","data":{"conversation_id":"conv_1"}}`)
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	header := "t=" + ts + ",v0=" + Sign(ts, body, "whsec")

	assert.NoError(t, VerifySignature(header, body, "whsec", now))
	assert.NoError(t, VerifySignature(header, body, "whsec", now.Add(29*time.Minute)))

	assert.ErrorIs(t, VerifySignature(header, []byte(`{"tampered":true}`), "whsec", now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(header, body, "other", now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(header, body, "whsec", now.Add(31*time.Minute)), ErrInvalidSignature)
	// Timestamps far in the future are refused too
	assert.ErrorIs(t, VerifySignature(header, body, "whsec", now.Add(-31*time.Minute)), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("garbage", body, "whsec", now), ErrInvalidSignature)
}

func TestParseWebhookEvent(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{
		"type": "post_call_transcription",
		"data": {
			"agent_id": "el-agent",
			"conversation_id": "conv_1",
			"status": "done",
			"transcript": [{"role": "agent", "message": "Hello", "time_in_call_secs": 0}],
			"metadata": {"start_time_unix_secs": 1700000000, "call_duration_secs": 65},
			"analysis": {"transcript_summary": "Pledged $50", "call_successful": "success"},
			"conversation_initiation_client_data": {"dynamic_variables": {"campaign_id": "c-1"}}
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, EventPostCallTranscription, event.Type)
	assert.Equal(t, 65, event.Data.Metadata.CallDurationSecs)
	assert.Equal(t, "success", event.Data.Analysis.CallSuccessful)
	assert.Equal(t, "c-1", event.Data.DynamicString("campaign_id"))
	assert.Equal(t, "", event.Data.DynamicString("missing"))
}
