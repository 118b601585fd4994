// ABOUTME: Agent and knowledge base endpoints
// ABOUTME: Mirrors local voice agents to remote ElevenLabs agents and manages documents
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/callhenk/henk-sub004/models"
)

// AgentConfig is the create/update body for a remote agent.
type AgentConfig struct {
	Name               string             `json:"name,omitempty"`
	ConversationConfig ConversationConfig `json:"conversation_config"`
}

type ConversationConfig struct {
	Agent AgentSettings `json:"agent"`
	TTS   *TTSSettings  `json:"tts,omitempty"`
}

type AgentSettings struct {
	FirstMessage string         `json:"first_message,omitempty"`
	Language     string         `json:"language,omitempty"`
	Prompt       PromptSettings `json:"prompt"`
}

type PromptSettings struct {
	Prompt        string         `json:"prompt"`
	KnowledgeBase []KnowledgeRef `json:"knowledge_base"`
}

type KnowledgeRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TTSSettings struct {
	VoiceID string `json:"voice_id"`
}

// ConfigFromAgent builds the remote configuration for a local agent.
func ConfigFromAgent(a *models.Agent) AgentConfig {
	refs := make([]KnowledgeRef, 0, len(a.KnowledgeBaseIDs))
	for _, id := range a.KnowledgeBaseIDs {
		refs = append(refs, KnowledgeRef{Type: "file", ID: id, Name: id})
	}

	cfg := AgentConfig{
		Name: a.Name,
		ConversationConfig: ConversationConfig{
			Agent: AgentSettings{
				FirstMessage: a.FirstMessage,
				Language:     a.Language,
				Prompt: PromptSettings{
					Prompt:        a.SystemPrompt,
					KnowledgeBase: refs,
				},
			},
		},
	}
	if a.VoiceID != "" {
		cfg.ConversationConfig.TTS = &TTSSettings{VoiceID: a.VoiceID}
	}
	return cfg
}

// CreateAgent creates a remote agent and returns its id.
func (c *Client) CreateAgent(ctx context.Context, cfg AgentConfig) (string, error) {
	var resp struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/convai/agents/create", cfg, &resp); err != nil {
		return "", err
	}
	if resp.AgentID == "" {
		return "", fmt.Errorf("elevenlabs returned no agent_id")
	}
	return resp.AgentID, nil
}

// GetAgent returns the raw remote agent document.
func (c *Client) GetAgent(ctx context.Context, agentID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/v1/convai/agents/"+url.PathEscape(agentID), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UpdateAgent patches the remote agent and returns the updated document.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, cfg AgentConfig) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/convai/agents/"+url.PathEscape(agentID), cfg, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/convai/agents/"+url.PathEscape(agentID), nil, nil)
}

// Document is a knowledge base entry.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UploadDocument uploads a file to the knowledge base.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*Document, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to buffer upload: %w", err)
	}
	if err := mw.WriteField("name", filename); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convai/knowledge-base/file", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var doc Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// AddURLDocument asks ElevenLabs to scrape a page into the knowledge base.
func (c *Client) AddURLDocument(ctx context.Context, pageURL, name string) (*Document, error) {
	body := map[string]string{"url": pageURL}
	if name != "" {
		body["name"] = name
	}
	var doc Document
	if err := c.doJSON(ctx, http.MethodPost, "/v1/convai/knowledge-base/url", body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// AddTextDocument stores plain text in the knowledge base.
func (c *Client) AddTextDocument(ctx context.Context, text, name string) (*Document, error) {
	body := map[string]string{"text": text, "name": name}
	var doc Document
	if err := c.doJSON(ctx, http.MethodPost, "/v1/convai/knowledge-base/text", body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns the raw knowledge base listing.
func (c *Client) ListDocuments(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/v1/convai/knowledge-base", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FilterDocuments decodes a knowledge base listing and keeps the entries
// whose id passes keep. Entries are returned as sent by the provider.
func FilterDocuments(raw json.RawMessage, keep func(id string) bool) ([]json.RawMessage, error) {
	var listing struct {
		Documents []json.RawMessage `json:"documents"`
	}
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base listing: %w", err)
	}

	docs := make([]json.RawMessage, 0, len(listing.Documents))
	for _, d := range listing.Documents {
		var head Document
		if err := json.Unmarshal(d, &head); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		if keep(head.ID) {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/convai/knowledge-base/"+url.PathEscape(documentID), nil, nil)
}
