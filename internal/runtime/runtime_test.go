package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/inboxpilot/internal/gmail"
	"github.com/joshsymonds/inboxpilot/internal/inbox"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		auth      bool
		temporary bool
		status    int
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, true, false, 401},
		{"rate limited 429", &googleapi.Error{Code: 429}, false, true, 429},
		{"rate limited 403", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, false, true, 429},
		{"missing scope", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}, true, false, 403},
		{"not found", &googleapi.Error{Code: 404}, false, false, 404},
		{"backend", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 503}), false, true, 503},
		{"token refresh", &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}}, true, false, 400},
		{"transport", errors.New("connection reset"), false, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("modify message", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.auth, inbox.IsAuth(err))
			assert.Equal(t, tt.temporary, inbox.IsTemporary(err))
			var re *inbox.RemoteError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.status, re.Status)
			assert.Equal(t, "modify message", re.Op)
		})
	}
}

func TestClassifyPassesThroughContextErrors(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	err := classify("op", fmt.Errorf("do: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var re *inbox.RemoteError
	assert.False(t, errors.As(err, &re))
}

func TestWalkParts(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "aGVsbG8gdGhlcmU"}},
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "PGI-aGk8L2I-"}},
				},
			},
			{MimeType: "application/pdf", Filename: "invoice.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att1"}},
		},
	}
	var msg gc.Message
	walkParts(payload, &msg)
	assert.Equal(t, "hello there", msg.PlainBody)
	assert.Equal(t, "<b>hi</b>", msg.HTMLBody)
	assert.True(t, msg.HasAttachment)
}

func TestScopeOAuthScope(t *testing.T) {
	s, err := ScopeModify.OAuthScope()
	require.NoError(t, err)
	assert.Equal(t, gmail.GmailModifyScope, s)
	_, err = Scope(42).OAuthScope()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "rule", "archive promos")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"rule":"archive promos"`)

	buf.Reset()
	NewLogger(&buf, "debug", "text").Debug("tinted", "k", "v")
	assert.Contains(t, buf.String(), "tinted")
	assert.Contains(t, buf.String(), "k=v")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

// fakeLabelsAPI serves the Gmail labels endpoints. The first create is
// rejected with 409 as if another writer created the label first.
func fakeLabelsAPI(t *testing.T) (*httptest.Server, func() int) {
	t.Helper()
	var (
		mu      sync.Mutex
		labels  []*gmail.Label
		creates int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(&gmail.ListLabelsResponse{Labels: labels})
		case http.MethodPost:
			creates++
			labels = append(labels, &gmail.Label{Id: "Label_9", Name: "fresh"})
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error": {"code": 409, "message": "Label name exists or conflicts"}}`))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return creates
	}
}

func TestEnsureLabelRecoversFromConflict(t *testing.T) {
	srv, creates := fakeLabelsAPI(t)
	ctx := context.Background()
	svc, err := gmail.NewService(ctx,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	id, err := NewGoogleAPIClient(svc).EnsureLabel(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, gc.LabelID("Label_9"), id)
	assert.Equal(t, 1, creates())
}
