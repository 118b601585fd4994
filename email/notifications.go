// ABOUTME: Conversation-started notification emails
// ABOUTME: Renders the team alert and reports whether it was sent, skipped or failed
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"
)

// Messages returned to the caller for each notification outcome.
const (
	MessageNotConfigured = "Conversation tracked (email not configured)"
	MessageFailed        = "Conversation tracked (email failed)"
	MessageSent          = "Conversation tracked and notification sent"
)

// ConversationStarted describes a conversation begun from a public widget.
type ConversationStarted struct {
	AgentID        string
	ConversationID string
	UserEmail      string
	UserName       string
	Source         string
	StartedAt      time.Time
}

var conversationStartedHTML = template.Must(template.New("conversation-started").Parse(`<h2>New {{.Source}} conversation started</h2>
<table>
  <tr><td><strong>Agent</strong></td><td>{{.AgentID}}</td></tr>
  {{if .ConversationID}}<tr><td><strong>Conversation</strong></td><td>{{.ConversationID}}</td></tr>{{end}}
  {{if .UserName}}<tr><td><strong>Name</strong></td><td>{{.UserName}}</td></tr>{{end}}
  {{if .UserEmail}}<tr><td><strong>Email</strong></td><td>{{.UserEmail}}</td></tr>{{end}}
  <tr><td><strong>Started</strong></td><td>{{.StartedAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
</table>
`))

// Notifier sends team alerts. A nil sender means email is not configured.
type Notifier struct {
	sender Sender
	from   string
	to     string
	logger *zap.Logger
}

func NewNotifier(sender Sender, from, to string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		from:   from,
		to:     to,
		logger: logger.With(zap.String("component", "notifications")),
	}
}

// ConversationStarted sends one alert and returns the caller-facing message.
// Delivery failures are logged, never returned.
func (n *Notifier) ConversationStarted(ctx context.Context, evt ConversationStarted) string {
	if n.sender == nil || n.to == "" {
		n.logger.Info("conversation tracked without email",
			zap.String("agent_id", evt.AgentID),
			zap.String("source", evt.Source))
		return MessageNotConfigured
	}

	if evt.Source == "" {
		evt.Source = "demo"
	}
	if evt.StartedAt.IsZero() {
		evt.StartedAt = time.Now().UTC()
	}

	var body bytes.Buffer
	if err := conversationStartedHTML.Execute(&body, evt); err != nil {
		n.logger.Error("failed to render notification", zap.Error(err))
		return MessageFailed
	}

	msg := Message{
		From:    n.from,
		To:      []string{n.to},
		Subject: fmt.Sprintf("New %s conversation started", evt.Source),
		HTML:    body.String(),
		ReplyTo: evt.UserEmail,
	}

	id, err := n.sender.Send(ctx, msg)
	if err != nil {
		n.logger.Error("failed to send notification",
			zap.String("agent_id", evt.AgentID),
			zap.Error(err))
		return MessageFailed
	}

	n.logger.Info("notification sent",
		zap.String("agent_id", evt.AgentID),
		zap.String("email_id", id))
	return MessageSent
}
