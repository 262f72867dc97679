package inbox

import (
	"context"
	"fmt"
	"strings"
)

// Filter narrows which messages Fetch returns.
type Filter struct {
	// Query is a raw provider search expression, e.g. `in:inbox newer_than:7d`.
	Query      string
	UnreadOnly bool
	Labels     []string
}

// Raw renders the filter as a single search expression.
func (f Filter) Raw() string {
	parts := make([]string, 0, len(f.Labels)+2)
	if f.UnreadOnly {
		parts = append(parts, "is:unread")
	}
	for _, l := range f.Labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`label:"%s"`, l))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// Mailbox is the narrow remote surface consumed by the engine.
type Mailbox interface {
	Fetch(ctx context.Context, filter Filter, maxResults int) ([]Email, error)
	ApplyAction(ctx context.Context, emailID string, action Action) error
}
