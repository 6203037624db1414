package oauth

import (
	"fmt"

	"golang.org/x/oauth2"
)

// TokenSource adapts a managed credential to oauth2.TokenSource so outbound
// clients can authenticate via oauth2.Transport. Refreshing stays with the
// Manager's background loop; this source only resolves the current access
// token.
func (m *Manager) TokenSource(ref Ref) oauth2.TokenSource {
	return &managerTokenSource{m: m, ref: ref}
}

type managerTokenSource struct {
	m   *Manager
	ref Ref
}

var _ oauth2.TokenSource = (*managerTokenSource)(nil)

func (ts *managerTokenSource) Token() (*oauth2.Token, error) {
	access := ts.m.ResolveAPIKey("", &ts.ref)
	if access == "" {
		return nil, fmt.Errorf("no access token available for %s", ts.ref.Key)
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}
