package stitch

import (
	"net/http"
)

// AuthTransport wraps an http.RoundTripper to authenticate requests with the
// session's access token. It lets services that accept Stitch access tokens be
// called through a plain http.Client. A 401 response is retried once after a
// token refresh, provided the request body can be replayed.
type AuthTransport struct {
	Base    http.RoundTripper
	Session *AuthSession
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	token, err := t.Session.AccessToken()
	if err != nil {
		return nil, err
	}
	resp, err := base.RoundTrip(withAuthorization(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	fresh, err := t.Session.RefreshStaleAccessToken(req.Context(), token)
	if err != nil {
		// Keep the server's answer; the session has already reacted.
		return resp, nil
	}
	retry := withAuthorization(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	resp.Body.Close()
	return base.RoundTrip(retry)
}

// withAuthorization clones the request to avoid mutating the original
func withAuthorization(req *http.Request, token string) *http.Request {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+token)
	return req2
}

// HTTPClient returns an http.Client whose requests carry the session's access
// token. base supplies timeouts and the underlying transport; it may be nil.
func (s *AuthSession) HTTPClient(base *http.Client) *http.Client {
	out := &http.Client{}
	var rt http.RoundTripper
	if base != nil {
		*out = *base
		rt = base.Transport
	}
	out.Transport = &AuthTransport{Base: rt, Session: s}
	return out
}
