// internal/runtime/auth.go
package runtime

import (
	"context"
	"fmt"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/inboxpilot/internal/gmail"
)

type Scope int

const (
	ScopeReadonly Scope = iota
	ScopeModify
	// ScopeFull is only needed for permanent deletes.
	ScopeFull
)

// OAuthScope returns the Gmail OAuth scope requested for s.
func (s Scope) OAuthScope() (string, error) {
	switch s {
	case ScopeReadonly:
		return gmail.GmailReadonlyScope, nil
	case ScopeModify:
		return gmail.GmailModifyScope, nil
	case ScopeFull:
		return gmail.MailGoogleComScope, nil
	default:
		return "", fmt.Errorf("unknown scope %d", s)
	}
}

// NewGmailClient reuses gmailctl's stored credentials in cfgDir. localcred
// chooses scopes based on what the binary requests on first run.
func NewGmailClient(ctx context.Context, cfgDir string, scope Scope) (gc.Client, error) {
	oauthScope, err := scope.OAuthScope()
	if err != nil {
		return nil, err
	}
	svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, oauthScope)
	if err != nil {
		return nil, fmt.Errorf("load gmailctl credentials from %s: %w", cfgDir, err)
	}
	return NewGoogleAPIClient(svc), nil
}
