// ABOUTME: TwiML responses, status callback mapping and request signature checks
// ABOUTME: Builds Dial/Say documents with twilio-go and maps call states to conversation statuses
package twilio

import (
	"net/url"

	"github.com/callhenk/henk-sub004/models"
	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

const SignatureHeader = "X-Twilio-Signature"

// DialTwiML connects the browser leg to a phone number. With an empty
// number the caller hears a short message instead.
func DialTwiML(to, callerID, statusCallback string) ([]byte, error) {
	var verbs []twiml.Element
	if to == "" {
		verbs = append(verbs, &twiml.VoiceSay{
			Message: "Thanks for calling Henk. No destination number was provided.",
		})
	} else {
		number := &twiml.VoiceNumber{PhoneNumber: to}
		if statusCallback != "" {
			number.StatusCallback = statusCallback
			number.StatusCallbackEvent = "initiated ringing answered completed"
			number.StatusCallbackMethod = "POST"
		}
		verbs = append(verbs, &twiml.VoiceDial{
			CallerId:      callerID,
			InnerElements: []twiml.Element{number},
		})
	}

	doc, err := twiml.Voice(verbs)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

// ValidSignature reports whether signature is the one Twilio computes for a
// POST of params to fullURL with authToken.
func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	validator := client.NewRequestValidator(authToken)
	return validator.Validate(fullURL, flat, signature)
}

// ConversationStatus maps a Twilio CallStatus onto a conversation status.
// Unknown values return "".
func ConversationStatus(callStatus string) string {
	switch callStatus {
	case "queued", "initiated", "ringing":
		return models.ConversationInitiated
	case "in-progress", "answered":
		return models.ConversationInProgress
	case "completed":
		return models.ConversationCompleted
	case "busy", "no-answer", "canceled":
		return models.ConversationNoAnswer
	case "failed":
		return models.ConversationFailed
	default:
		return ""
	}
}
