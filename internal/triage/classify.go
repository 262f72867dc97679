package triage

import (
	"strings"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

// EmailType is the heuristic kind of an email used for low-priority demotion.
type EmailType string

const (
	TypeNone        EmailType = ""
	TypeNewsletter  EmailType = "newsletter"
	TypePromotional EmailType = "promotional"
	TypeSocial      EmailType = "social"
	TypeDigest      EmailType = "digest"
	TypeAutomated   EmailType = "automated"
)

// categoryLabels maps provider category markers onto types.
var categoryLabels = map[string]EmailType{
	"CATEGORY_PROMOTIONS": TypePromotional,
	"CATEGORY_SOCIAL":     TypeSocial,
	"CATEGORY_UPDATES":    TypeNewsletter,
	"CATEGORY_FORUMS":     TypeDigest,
	"newsletter":          TypeNewsletter,
	"promotional":         TypePromotional,
	"social":              TypeSocial,
	"digest":              TypeDigest,
}

var automatedSenderMarkers = []string{"noreply", "no-reply", "notifications"}

// typeSynonyms lets criteria say "promotions" or "newsletters".
var typeSynonyms = map[string]EmailType{
	"newsletter":    TypeNewsletter,
	"newsletters":   TypeNewsletter,
	"updates":       TypeNewsletter,
	"promotional":   TypePromotional,
	"promotion":     TypePromotional,
	"promotions":    TypePromotional,
	"promo":         TypePromotional,
	"marketing":     TypePromotional,
	"social":        TypeSocial,
	"digest":        TypeDigest,
	"digests":       TypeDigest,
	"forums":        TypeDigest,
	"automated":     TypeAutomated,
	"notification":  TypeAutomated,
	"notifications": TypeAutomated,
}

// DeriveType classifies an email. Category labels win, then a List-Id header
// marks mailing-list traffic as newsletter, then automated sender addresses.
func DeriveType(e inbox.Email) EmailType {
	for _, lbl := range e.Labels {
		if t, ok := categoryLabels[lbl]; ok {
			return t
		}
	}
	if e.ListID != "" {
		return TypeNewsletter
	}
	from := strings.ToLower(e.From)
	for _, marker := range automatedSenderMarkers {
		if strings.Contains(from, marker) {
			return TypeAutomated
		}
	}
	return TypeNone
}

// ParseType normalizes a user supplied type label.
func ParseType(label string) EmailType {
	label = strings.ToLower(strings.TrimSpace(label))
	if t, ok := typeSynonyms[label]; ok {
		return t
	}
	return EmailType(label)
}

// Covers reports whether a low-priority type entry want applies to t.
// Automated senders fall in the newsletter class, so "newsletter" also
// demotes them.
func (t EmailType) Covers(want EmailType) bool {
	if t == TypeNone {
		return false
	}
	return t == want || (t == TypeAutomated && want == TypeNewsletter)
}

// Informational reports whether the type never expects a reply.
func (t EmailType) Informational() bool {
	switch t {
	case TypeNewsletter, TypePromotional, TypeDigest, TypeAutomated:
		return true
	default:
		return false
	}
}
