package triage

import (
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

var requestMarkers = []string{
	"?",
	"please",
	"could you",
	"can you",
	"would you",
	"let me know",
	"get back to me",
	"your thoughts",
	"rsvp",
}

// NeedsReply is independent of priority. self lists the user's own addresses;
// when it is empty any direct To recipient counts as addressed to the user.
func NeedsReply(e inbox.Email, self []string) bool {
	if DeriveType(e).Informational() {
		return false
	}
	if !e.RepliedAt.IsZero() && e.RepliedAt.After(e.Date) {
		return false
	}
	if !e.Unread {
		return false
	}
	if !addressedDirectly(e, self) {
		return false
	}
	return hasRequestMarker(e.Subject + "\n" + e.Body)
}

func addressedDirectly(e inbox.Email, self []string) bool {
	if len(self) == 0 {
		return len(e.To) > 0
	}
	for _, to := range e.To {
		addr := inbox.AddressOf(to)
		for _, me := range self {
			if addr != "" && strings.EqualFold(addr, strings.TrimSpace(me)) {
				return true
			}
		}
	}
	return false
}

func hasRequestMarker(text string) bool {
	text = strings.ToLower(text)
	for _, marker := range requestMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
