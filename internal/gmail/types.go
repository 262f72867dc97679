package gmail

import "time"

type MessageID string
type LabelID string

// System labels addressed by id.
const (
	LabelInbox   LabelID = "INBOX"
	LabelUnread  LabelID = "UNREAD"
	LabelStarred LabelID = "STARRED"
	LabelSent    LabelID = "SENT"
)

// Message is the full-format view of one message the Mailbox needs.
type Message struct {
	ID            MessageID
	ThreadID      string
	LabelIDs      []LabelID
	Headers       map[string]string // canonical MIME keys: From, To, Cc, Subject, Date, List-Id
	Snippet       string
	PlainBody     string
	HTMLBody      string
	HasAttachment bool
	InternalDate  time.Time
}

type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Empty reports whether the modification would change nothing.
func (o ModifyOps) Empty() bool {
	return len(o.AddLabels) == 0 && len(o.RemoveLabels) == 0
}

type Query struct {
	Raw string // Gmail query string, already formed (e.g. `is:unread label:"news" newer_than:7d`)
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}
