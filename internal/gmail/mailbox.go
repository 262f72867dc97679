package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/k3a/html2text"
	"golang.org/x/sync/singleflight"

	"github.com/joshsymonds/inboxpilot/internal/inbox"
	"github.com/joshsymonds/inboxpilot/internal/rate"
)

const (
	defaultPageSize   = 100
	maxPageSize       = 500
	defaultMaxRetries = 4
)

// Mailbox adapts a Client to inbox.Mailbox. Every remote call waits on the
// limiter and temporary failures are retried with exponential backoff.
type Mailbox struct {
	Client  Client
	Rate    rate.Limiter
	Log     *slog.Logger
	// PageSize bounds each List call; zero means 100.
	PageSize int
	// ResolveReplies costs one extra call per threaded message to fill
	// Email.RepliedAt.
	ResolveReplies bool
	MaxRetries     uint64
	// NewBackOff overrides the retry schedule, mainly for tests.
	NewBackOff func() backoff.BackOff

	mu     sync.Mutex
	labels map[string]LabelID

	// ensuring collapses concurrent creates of the same label.
	ensuring singleflight.Group
}

// NewMailbox constructs a Mailbox with defaults matching the CLIs.
func NewMailbox(client Client, limiter rate.Limiter, logger *slog.Logger) *Mailbox {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Mailbox{
		Client:     client,
		Rate:       limiter,
		Log:        logger,
		PageSize:   defaultPageSize,
		MaxRetries: defaultMaxRetries,
	}
}

// Fetch lists matching message ids page by page, then loads each message.
func (m *Mailbox) Fetch(ctx context.Context, filter inbox.Filter, maxResults int) ([]inbox.Email, error) {
	q := Query{Raw: filter.Raw()}
	ids, err := m.listIDs(ctx, q, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		m.log().InfoContext(ctx, "no messages matched", "query", q.Raw)
		return nil, nil
	}

	var byID map[LabelID]string
	err = m.call(ctx, "list labels", func() error {
		var lerr error
		_, byID, lerr = m.Client.ListLabels(ctx)
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	emails := make([]inbox.Email, 0, len(ids))
	for _, id := range ids {
		var msg Message
		err := m.call(ctx, "get message", func() error {
			var gerr error
			msg, gerr = m.Client.Get(ctx, id)
			return gerr
		})
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", id, err)
		}
		email := toEmail(msg, byID)
		if m.ResolveReplies && msg.ThreadID != "" {
			var sent time.Time
			err := m.call(ctx, "get thread", func() error {
				var terr error
				sent, terr = m.Client.LastSent(ctx, msg.ThreadID)
				return terr
			})
			if err != nil {
				return nil, fmt.Errorf("get thread %s: %w", msg.ThreadID, err)
			}
			email.RepliedAt = sent
		}
		emails = append(emails, email)
	}
	m.log().InfoContext(ctx, "fetched messages", "query", q.Raw, "count", len(emails))
	return emails, nil
}

func (m *Mailbox) listIDs(ctx context.Context, q Query, maxResults int) ([]MessageID, error) {
	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	var all []MessageID
	pageToken := ""
	for {
		size := pageSize
		if maxResults > 0 {
			size = min(size, maxResults-len(all))
		}
		var page ListPage
		err := m.call(ctx, "list messages", func() error {
			var lerr error
			page, lerr = m.Client.List(ctx, q, pageToken, size)
			return lerr
		})
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		all = append(all, page.IDs...)
		if maxResults > 0 && len(all) >= maxResults {
			return all[:maxResults], nil
		}
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

// ApplyAction performs one action. Every action is safe to repeat: label
// changes converge, and trashing or deleting a message that is already gone
// succeeds.
func (m *Mailbox) ApplyAction(ctx context.Context, emailID string, action inbox.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	id := MessageID(emailID)
	switch action.Type {
	case inbox.ActionTrash:
		return m.call(ctx, "trash", func() error { return m.Client.Trash(ctx, id) })
	case inbox.ActionDelete:
		err := m.call(ctx, "delete", func() error { return m.Client.Delete(ctx, id) })
		if isNotFound(err) {
			return nil
		}
		return err
	}

	ops, err := m.opsFor(ctx, action)
	if err != nil {
		return err
	}
	if ops.Empty() {
		return nil
	}
	return m.call(ctx, "modify", func() error { return m.Client.Modify(ctx, id, ops) })
}

func (m *Mailbox) opsFor(ctx context.Context, action inbox.Action) (ModifyOps, error) {
	switch action.Type {
	case inbox.ActionArchive:
		return ModifyOps{RemoveLabels: []LabelID{LabelInbox}}, nil
	case inbox.ActionMarkRead:
		return ModifyOps{RemoveLabels: []LabelID{LabelUnread}}, nil
	case inbox.ActionMarkUnread:
		return ModifyOps{AddLabels: []LabelID{LabelUnread}}, nil
	case inbox.ActionStar:
		return ModifyOps{AddLabels: []LabelID{LabelStarred}}, nil
	case inbox.ActionUnstar:
		return ModifyOps{RemoveLabels: []LabelID{LabelStarred}}, nil
	case inbox.ActionAddLabel:
		lid, err := m.ensureLabel(ctx, action.Label())
		if err != nil {
			return ModifyOps{}, err
		}
		return ModifyOps{AddLabels: []LabelID{lid}}, nil
	case inbox.ActionRemoveLabel:
		lid, ok, err := m.lookupLabel(ctx, action.Label())
		if err != nil || !ok {
			// a label that does not exist is not on the message either
			return ModifyOps{}, err
		}
		return ModifyOps{RemoveLabels: []LabelID{lid}}, nil
	default:
		return ModifyOps{}, &inbox.ValidationError{Field: "actions.type", Reason: fmt.Sprintf("unsupported action %q", action.Type)}
	}
}

func (m *Mailbox) ensureLabel(ctx context.Context, name string) (LabelID, error) {
	if lid, ok := m.cachedLabel(name); ok {
		return lid, nil
	}
	v, err, _ := m.ensuring.Do(name, func() (any, error) {
		// a flight that finished between the cache miss and Do already cached it
		if lid, ok := m.cachedLabel(name); ok {
			return lid, nil
		}
		var lid LabelID
		err := m.call(ctx, "ensure label", func() error {
			var eerr error
			lid, eerr = m.Client.EnsureLabel(ctx, name)
			return eerr
		})
		if err != nil {
			return LabelID(""), err
		}
		m.cacheLabel(name, lid)
		return lid, nil
	})
	if err != nil {
		return "", fmt.Errorf("ensure label %q: %w", name, err)
	}
	return v.(LabelID), nil
}

func (m *Mailbox) lookupLabel(ctx context.Context, name string) (LabelID, bool, error) {
	if lid, ok := m.cachedLabel(name); ok {
		return lid, true, nil
	}
	var byName map[string]LabelID
	err := m.call(ctx, "list labels", func() error {
		var lerr error
		byName, _, lerr = m.Client.ListLabels(ctx)
		return lerr
	})
	if err != nil {
		return "", false, fmt.Errorf("list labels: %w", err)
	}
	lid, ok := byName[name]
	if ok {
		m.cacheLabel(name, lid)
	}
	return lid, ok, nil
}

func (m *Mailbox) cachedLabel(name string) (LabelID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lid, ok := m.labels[name]
	return lid, ok
}

func (m *Mailbox) cacheLabel(name string, lid LabelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labels == nil {
		m.labels = map[string]LabelID{}
	}
	m.labels[name] = lid
}

// call waits for the limiter before every attempt and retries only
// temporary remote errors.
func (m *Mailbox) call(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	operation := func() error {
		if m.Rate != nil {
			if err := m.Rate.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !inbox.IsTemporary(err) {
			return backoff.Permanent(err)
		}
		m.log().DebugContext(ctx, "retrying gmail call", "op", op, "attempt", attempt, "error", err)
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(m.backOff(), m.MaxRetries), ctx))
}

func (m *Mailbox) backOff() backoff.BackOff {
	if m.NewBackOff != nil {
		return m.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (m *Mailbox) log() *slog.Logger {
	if m.Log == nil {
		return slog.Default()
	}
	return m.Log
}

func isNotFound(err error) bool {
	var re *inbox.RemoteError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

func toEmail(msg Message, labelNames map[LabelID]string) inbox.Email {
	h := msg.Headers
	e := inbox.Email{
		ID:            string(msg.ID),
		ThreadID:      msg.ThreadID,
		Subject:       h["Subject"],
		HasAttachment: msg.HasAttachment,
		ListID:        inbox.NormalizeListID(h["List-Id"]),
		Body:          bodyOf(msg),
	}
	e.From, e.FromName = splitAddress(h["From"])
	e.To = addressList(h["To"])
	e.Cc = addressList(h["Cc"])
	for _, lid := range msg.LabelIDs {
		if lid == LabelUnread {
			e.Unread = true
		}
		name := string(lid)
		if n, ok := labelNames[lid]; ok && n != "" {
			name = n
		}
		e.Labels = append(e.Labels, name)
	}
	e.Date = msg.InternalDate
	if raw := strings.TrimSpace(h["Date"]); raw != "" {
		if d, err := mail.ParseDate(raw); err == nil {
			e.Date = d
		}
	}
	return e
}

func bodyOf(msg Message) string {
	if body := strings.TrimSpace(msg.PlainBody); body != "" {
		return body
	}
	if html := strings.TrimSpace(msg.HTMLBody); html != "" {
		return strings.TrimSpace(html2text.HTML2Text(html))
	}
	return msg.Snippet
}

func splitAddress(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return inbox.AddressOf(raw), ""
	}
	return strings.ToLower(addr.Address), addr.Name
}

func addressList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if a := inbox.AddressOf(part); a != "" {
				out = append(out, a)
			}
		}
		return out
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}

var _ inbox.Mailbox = (*Mailbox)(nil)
