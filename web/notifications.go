// ABOUTME: Public conversation-started hooks from the grants and demo widgets
// ABOUTME: Always acknowledges a tracked conversation, whether or not the alert email went out
package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/email"
)

type conversationStartedInput struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	UserEmail      string `json:"user_email"`
	UserName       string `json:"user_name"`
	Source         string `json:"source"`
}

// handleConversationStarted alerts the team. source labels the widget
// unless the body names one.
func (s *Server) handleConversationStarted(source string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Widgets post loosely; an unreadable body is treated as empty.
		var in conversationStartedInput
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in)

		agentID := strings.TrimSpace(in.AgentID)
		if agentID == "" {
			s.writeError(w, r, NewValidationError("Agent ID is required"))
			return
		}

		label := source
		if v := strings.TrimSpace(in.Source); v != "" {
			label = v
		}
		message := s.notifier.ConversationStarted(r.Context(), email.ConversationStarted{
			AgentID:        agentID,
			ConversationID: strings.TrimSpace(in.ConversationID),
			UserEmail:      strings.TrimSpace(in.UserEmail),
			UserName:       strings.TrimSpace(in.UserName),
			Source:         label,
			StartedAt:      time.Now(),
		})
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
	}
}
