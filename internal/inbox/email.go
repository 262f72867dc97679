// Package inbox holds the mailbox-facing vocabulary shared by the triage,
// rules and automation packages: the Email snapshot, the Action set, the
// Mailbox contract and the error taxonomy.
package inbox

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// Email is a read-only snapshot of one message as offered to the engine.
type Email struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	From          string    `json:"from"`
	FromName      string    `json:"from_name,omitempty"`
	To            []string  `json:"to,omitempty"`
	Cc            []string  `json:"cc,omitempty"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body,omitempty"`
	Labels        []string  `json:"labels,omitempty"`
	Unread        bool      `json:"unread"`
	HasAttachment bool      `json:"has_attachment"`
	Date          time.Time `json:"date"`
	// ListID is the normalized List-Id header, empty for direct mail.
	ListID string `json:"list_id,omitempty"`
	// RepliedAt is when the user last sent a message in this thread.
	RepliedAt time.Time `json:"replied_at,omitempty"`
}

// Domain returns the lower-cased sender domain.
func (e Email) Domain() string {
	return DomainOf(e.From)
}

// HasLabel reports whether the label set contains name exactly.
func (e Email) HasLabel(name string) bool {
	for _, lbl := range e.Labels {
		if lbl == name {
			return true
		}
	}
	return false
}

var angleBracketRe = regexp.MustCompile(`^[<\s]*(.*?)[>\s]*$`)

const listIDMatchGroups = 2

// DomainOf extracts the domain from a From header or bare address.
func DomainOf(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addrs, err := mail.ParseAddressList(from)
	if err != nil {
		return extractDomain(from)
	}
	for _, addr := range addrs {
		if dom := extractDomain(addr.Address); dom != "" {
			return dom
		}
	}
	return ""
}

// AddressOf returns the bare lower-cased address of a From/To header value.
func AddressOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return strings.ToLower(strings.Trim(raw, "<> "))
	}
	return strings.ToLower(addr.Address)
}

func extractDomain(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return ""
	}
	at := strings.LastIndex(address, "@")
	if at == -1 {
		return ""
	}
	domain := address[at+1:]
	return strings.Trim(domain, ".> ")
}

// NormalizeListID strips angle brackets and quotes from a List-Id header.
func NormalizeListID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if open := strings.LastIndex(raw, "<"); open > 0 {
		raw = raw[open:]
	}
	if matches := angleBracketRe.FindStringSubmatch(raw); len(matches) == listIDMatchGroups {
		raw = matches[1]
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ">")
	raw = strings.TrimPrefix(raw, "<")
	raw = strings.Trim(raw, "\" ")
	return strings.ToLower(raw)
}
