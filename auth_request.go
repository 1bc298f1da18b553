package stitch

import (
	"context"
	"net/http"
)

// AuthRequest is a Request sent with the session's credentials attached.
type AuthRequest struct {
	Request

	// UseRefreshToken attaches the refresh token instead of the access token.
	// Such requests are never retried: a rejected refresh token ends the session.
	UseRefreshToken bool
}

func (r *AuthRequest) withBearer(token string) *Request {
	req := r.Request
	req.Header = make(http.Header, len(r.Header)+1)
	for k, vs := range r.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return &req
}

// DoAuthenticatedRequest sends req with the current token attached. If the server
// rejects the token with InvalidSession, the access token is refreshed and the
// request is retried exactly once.
func (s *AuthSession) DoAuthenticatedRequest(ctx context.Context, req *AuthRequest) (*Response, error) {
	userID, token, err := s.tokenFor(req.UseRefreshToken)
	if err != nil {
		return nil, err
	}

	resp, err := s.requests.DoRequest(ctx, req.withBearer(token))
	if err == nil || !IsServiceError(err, ErrorCodeInvalidSession) {
		return resp, err
	}

	if req.UseRefreshToken {
		s.mu.Lock()
		var events []AuthEvent
		if s.info.isLoggedIn() && s.info.RefreshToken == token {
			events = s.clearLocked(ctx)
		}
		s.unlockAndDispatch(events)
		return nil, err
	}

	s.mu.Lock()
	token, events, rerr := s.refreshIfStaleLocked(ctx, userID, token)
	s.unlockAndDispatch(events)
	if rerr != nil {
		return nil, rerr
	}
	return s.requests.DoRequest(ctx, req.withBearer(token))
}

// doAuthenticatedRequestLocked is DoAuthenticatedRequest for callers that already
// hold s.mu for writing. Events produced by a refresh are returned for dispatch.
func (s *AuthSession) doAuthenticatedRequestLocked(ctx context.Context, req *AuthRequest) (*Response, []AuthEvent, error) {
	if !s.info.isLoggedIn() {
		return nil, nil, ErrMustAuthenticateFirst
	}
	token := s.info.AccessToken
	if req.UseRefreshToken {
		token = s.info.RefreshToken
	}

	resp, err := s.requests.DoRequest(ctx, req.withBearer(token))
	if err == nil || !IsServiceError(err, ErrorCodeInvalidSession) {
		return resp, nil, err
	}
	if req.UseRefreshToken {
		return nil, s.clearLocked(ctx), err
	}

	events, rerr := s.refreshAccessTokenLocked(ctx)
	if rerr != nil {
		return nil, events, rerr
	}
	resp, err = s.requests.DoRequest(ctx, req.withBearer(s.info.AccessToken))
	return resp, events, err
}

// DoAuthenticatedJSON performs req and decodes the response body into out.
func (s *AuthSession) DoAuthenticatedJSON(ctx context.Context, req *AuthRequest, out any) error {
	resp, err := s.DoAuthenticatedRequest(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// DecodeAuthenticated performs req on s and decodes the response as a T.
func DecodeAuthenticated[T any](ctx context.Context, s *AuthSession, req *AuthRequest) (T, error) {
	var out T
	err := s.DoAuthenticatedJSON(ctx, req, &out)
	return out, err
}

// NewAuthJSONRequest builds an AuthRequest whose body is the JSON encoding of in.
func NewAuthJSONRequest(method, path string, in any) (*AuthRequest, error) {
	req, err := newJSONRequest(method, path, in)
	if err != nil {
		return nil, err
	}
	return &AuthRequest{Request: *req}, nil
}

func (s *AuthSession) tokenFor(useRefreshToken bool) (userID, token string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.info.isLoggedIn() {
		return "", "", ErrMustAuthenticateFirst
	}
	if useRefreshToken {
		return s.info.UserID, s.info.RefreshToken, nil
	}
	return s.info.UserID, s.info.AccessToken, nil
}
