// ABOUTME: Phone number normalization and matching
// ABOUTME: Picks the ElevenLabs phone number whose digits match a caller id
package campaigns

import (
	"strings"

	"github.com/callhenk/henk-sub004/elevenlabs"
)

// Digits strips everything but 0-9.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone accepts 7 to 15 digits, the E.164 bounds.
func ValidPhone(s string) bool {
	n := len(Digits(s))
	return n >= 7 && n <= 15
}

// ToE164 formats a number for dialing. Ten-digit numbers without a
// leading + are assumed to be North American.
func ToE164(s string) string {
	d := Digits(s)
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(strings.TrimSpace(s), "+") && len(d) == 10 {
		return "+1" + d
	}
	return "+" + d
}

// PhonesMatch compares digits, or the last ten digits so that "+1 (555)
// 010-2000" matches "5550102000".
func PhonesMatch(a, b string) bool {
	da, db := Digits(a), Digits(b)
	if da == "" || db == "" {
		return false
	}
	if da == db {
		return true
	}
	return len(da) >= 10 && len(db) >= 10 && da[len(da)-10:] == db[len(db)-10:]
}

// SelectPhoneNumberID returns the id of the first number matching a
// preferred caller id (in order), else fallbackID, else the first listed.
func SelectPhoneNumberID(numbers []elevenlabs.PhoneNumber, preferred []string, fallbackID string) string {
	for _, want := range preferred {
		if want == "" {
			continue
		}
		for _, n := range numbers {
			if PhonesMatch(n.PhoneNumber, want) {
				return n.PhoneNumberID
			}
		}
	}
	if fallbackID != "" {
		return fallbackID
	}
	if len(numbers) > 0 {
		return numbers[0].PhoneNumberID
	}
	return ""
}
