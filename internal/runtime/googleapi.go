// internal/runtime/googleapi.go
package runtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/inboxpilot/internal/gmail"
	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

const me = "me"

type googleClient struct{ svc *gmail.Service }

// NewGoogleAPIClient wraps svc. Every returned error is classified into the
// inbox error taxonomy.
func NewGoogleAPIClient(svc *gmail.Service) gc.Client { return &googleClient{svc} }

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(me).MaxResults(int64(pageSize))
	if q.Raw != "" {
		call = call.Q(q.Raw)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, classify("list messages", err)
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) Get(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.svc.Users.Messages.Get(me, string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return gc.Message{}, classify("get message", err)
	}
	out := gc.Message{
		ID:           id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     toLabelIDs(msg.LabelIds),
		Headers:      map[string]string{},
		Snippet:      msg.Snippet,
		InternalDate: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload != nil {
		for _, hd := range msg.Payload.Headers {
			key := textproto.CanonicalMIMEHeaderKey(hd.Name)
			if _, seen := out.Headers[key]; !seen {
				out.Headers[key] = hd.Value
			}
		}
		walkParts(msg.Payload, &out)
	}
	return out, nil
}

// walkParts collects the first plain and html bodies and notes attachments.
func walkParts(part *gmail.MessagePart, out *gc.Message) {
	if part == nil {
		return
	}
	if part.Filename != "" || (part.Body != nil && part.Body.AttachmentId != "") {
		out.HasAttachment = true
	} else if part.Body != nil && part.Body.Data != "" {
		switch strings.ToLower(part.MimeType) {
		case "text/plain":
			if out.PlainBody == "" {
				out.PlainBody = decodeBody(part.Body.Data)
			}
		case "text/html":
			if out.HTMLBody == "" {
				out.HTMLBody = decodeBody(part.Body.Data)
			}
		}
	}
	for _, child := range part.Parts {
		walkParts(child, out)
	}
}

func decodeBody(data string) string {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(raw)
}

func (g *googleClient) Modify(ctx context.Context, id gc.MessageID, ops gc.ModifyOps) error {
	req := &gmail.ModifyMessageRequest{}
	if len(ops.AddLabels) > 0 {
		req.AddLabelIds = toStrings(ops.AddLabels)
	}
	if len(ops.RemoveLabels) > 0 {
		req.RemoveLabelIds = toStrings(ops.RemoveLabels)
	}
	_, err := g.svc.Users.Messages.Modify(me, string(id), req).Context(ctx).Do()
	return classify("modify message", err)
}

func (g *googleClient) Trash(ctx context.Context, id gc.MessageID) error {
	_, err := g.svc.Users.Messages.Trash(me, string(id)).Context(ctx).Do()
	return classify("trash message", err)
}

func (g *googleClient) Delete(ctx context.Context, id gc.MessageID) error {
	err := g.svc.Users.Messages.Delete(me, string(id)).Context(ctx).Do()
	return classify("delete message", err)
}

func (g *googleClient) ListLabels(ctx context.Context) (map[string]gc.LabelID, map[gc.LabelID]string, error) {
	lr, err := g.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, nil, classify("list labels", err)
	}
	byName := map[string]gc.LabelID{}
	byID := map[gc.LabelID]string{}
	for _, l := range lr.Labels {
		byName[l.Name] = gc.LabelID(l.Id)
		byID[gc.LabelID(l.Id)] = l.Name
	}
	return byName, byID, nil
}

func (g *googleClient) EnsureLabel(ctx context.Context, name string) (gc.LabelID, error) {
	byName, _, err := g.ListLabels(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := byName[name]; ok {
		return id, nil
	}
	created, err := g.svc.Users.Labels.Create(me, &gmail.Label{Name: name}).Context(ctx).Do()
	if err != nil {
		// another writer created it since we listed
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
			byName, _, lerr := g.ListLabels(ctx)
			if lerr != nil {
				return "", lerr
			}
			if id, ok := byName[name]; ok {
				return id, nil
			}
		}
		return "", fmt.Errorf("create label %q: %w", name, classify("create label", err))
	}
	return gc.LabelID(created.Id), nil
}

func (g *googleClient) LastSent(ctx context.Context, threadID string) (time.Time, error) {
	th, err := g.svc.Users.Threads.Get(me, threadID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return time.Time{}, classify("get thread", err)
	}
	var last time.Time
	for _, m := range th.Messages {
		for _, l := range m.LabelIds {
			if l != string(gc.LabelSent) {
				continue
			}
			if at := time.UnixMilli(m.InternalDate); at.After(last) {
				last = at
			}
		}
	}
	return last, nil
}

var (
	rateLimitReasons = map[string]bool{"rateLimitExceeded": true, "userRateLimitExceeded": true}
	authReasons      = map[string]bool{"insufficientPermissions": true, "authError": true}
)

// classify maps API and token errors onto inbox.RemoteError and
// inbox.AuthError. Context errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		re := inbox.RemoteError{Op: op, Status: gerr.Code, Err: err}
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return &inbox.AuthError{RemoteError: re}
		case gerr.Code == http.StatusForbidden && hasReason(gerr, rateLimitReasons):
			re.Status = http.StatusTooManyRequests
		case gerr.Code == http.StatusForbidden && hasReason(gerr, authReasons):
			return &inbox.AuthError{RemoteError: re}
		}
		return &re
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return &inbox.AuthError{RemoteError: inbox.RemoteError{Op: op, Status: status, Err: err}}
	}
	return &inbox.RemoteError{Op: op, Err: err}
}

func hasReason(gerr *googleapi.Error, reasons map[string]bool) bool {
	for _, item := range gerr.Errors {
		if reasons[item.Reason] {
			return true
		}
	}
	return false
}

func toLabelIDs(ids []string) []gc.LabelID {
	out := make([]gc.LabelID, 0, len(ids))
	for _, id := range ids {
		out = append(out, gc.LabelID(id))
	}
	return out
}

func toStrings(ids []gc.LabelID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
