package stitch

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource backed by the session, so the
// session's access token can be used with oauth2.NewClient or any library that
// accepts a TokenSource. Tokens close to expiry are refreshed first.
func (s *AuthSession) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, session: s}
}

type sessionTokenSource struct {
	ctx     context.Context
	session *AuthSession
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	token, err := ts.session.AccessToken()
	if err != nil {
		return nil, err
	}
	expiry, err := TokenExpiry(token)
	if err != nil {
		// Opaque token; let the server decide.
		return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
	}

	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expiry}
	if tok.Valid() {
		return tok, nil
	}
	token, err = ts.session.RefreshStaleAccessToken(ts.ctx, token)
	if err != nil {
		return nil, err
	}
	tok = &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if expiry, err := TokenExpiry(token); err == nil {
		tok.Expiry = expiry
	}
	return tok, nil
}
