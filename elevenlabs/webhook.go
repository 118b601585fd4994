// ABOUTME: Post-call webhook payloads and signature verification
// ABOUTME: Checks the ElevenLabs-Signature header and decodes transcription events
package elevenlabs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v0=<hex hmac>".
const SignatureHeader = "ElevenLabs-Signature"

// SignatureTolerance is how far a signed timestamp may be from now.
const SignatureTolerance = 30 * time.Minute

// EventPostCallTranscription is sent once a call's analysis is ready.
const EventPostCallTranscription = "post_call_transcription"

// EventCallInitiationFailure is sent when an outbound call never connects.
const EventCallInitiationFailure = "call_initiation_failure"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookEvent is the envelope of every webhook delivery.
type WebhookEvent struct {
	Type           string       `json:"type"`
	EventTimestamp int64        `json:"event_timestamp"`
	Data           Conversation `json:"data"`
}

// ParseWebhookEvent decodes a webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	return &event, nil
}

// VerifySignature checks header against body. now is injected for tests.
func VerifySignature(header string, body []byte, secret string, now time.Time) error {
	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v0":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := Sign(timestamp, body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the hex v0 signature for a timestamp and body.
func Sign(timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
