// Package gmail implements inbox.Mailbox over a narrow Gmail API surface.
package gmail

import (
	"context"
	"time"
)

// Client is the narrow Gmail surface required by inboxpilot. Errors should
// be *inbox.RemoteError or *inbox.AuthError so callers can classify them.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID) (Message, error)
	Modify(ctx context.Context, id MessageID, ops ModifyOps) error
	Trash(ctx context.Context, id MessageID) error
	Delete(ctx context.Context, id MessageID) error
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
	EnsureLabel(ctx context.Context, name string) (LabelID, error)
	// LastSent returns when the user last sent a message in the thread,
	// zero when never.
	LastSent(ctx context.Context, threadID string) (time.Time, error)
}
