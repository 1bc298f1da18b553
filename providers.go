package stitch

import (
	"context"
	"errors"
	"net/http"
)

// UserPasswordProviderClient manages accounts of the local-userpass provider.
// None of its calls require a logged in user.
type UserPasswordProviderClient struct {
	requests *RequestClient
	path     string
}

func (c *UserPasswordProviderClient) post(ctx context.Context, suffix string, body any) error {
	_, err := c.requests.DoJSON(ctx, http.MethodPost, c.path+suffix, body)
	return err
}

// RegisterWithEmail registers a new user. The server sends a confirmation email.
func (c *UserPasswordProviderClient) RegisterWithEmail(ctx context.Context, email, password string) error {
	return c.post(ctx, "/register", map[string]string{"email": email, "password": password})
}

// ConfirmUser confirms a user with the token and token id from the confirmation email.
func (c *UserPasswordProviderClient) ConfirmUser(ctx context.Context, token, tokenID string) error {
	return c.post(ctx, "/confirm", map[string]string{"token": token, "tokenId": tokenID})
}

// ResendConfirmationEmail asks the server to resend the confirmation email.
func (c *UserPasswordProviderClient) ResendConfirmationEmail(ctx context.Context, email string) error {
	return c.post(ctx, "/confirm/send", map[string]string{"email": email})
}

// ResetPassword sets a new password using the token and token id from the reset email.
func (c *UserPasswordProviderClient) ResetPassword(ctx context.Context, token, tokenID, password string) error {
	return c.post(ctx, "/reset", map[string]string{"token": token, "tokenId": tokenID, "password": password})
}

// SendResetPasswordEmail asks the server to send a password reset email.
func (c *UserPasswordProviderClient) SendResetPasswordEmail(ctx context.Context, email string) error {
	return c.post(ctx, "/reset/send", map[string]string{"email": email})
}

// UserAPIKey is an API key owned by a user. Key is only populated by CreateAPIKey.
type UserAPIKey struct {
	ID       string `json:"_id"`
	Key      string `json:"key,omitempty"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
}

// ErrInvalidAPIKeyName is returned before any network call when an API key name is empty.
var ErrInvalidAPIKeyName = errors.New("stitch: api key name must not be empty")

// UserAPIKeyProviderClient manages the current user's API keys. Its requests are
// authenticated with the refresh token.
type UserAPIKeyProviderClient struct {
	auth *AuthSession
}

func (c *UserAPIKeyProviderClient) do(ctx context.Context, method, path string, in, out any) error {
	req, err := NewAuthJSONRequest(method, path, in)
	if err != nil {
		return err
	}
	req.UseRefreshToken = true
	return c.auth.DoAuthenticatedJSON(ctx, req, out)
}

// CreateAPIKey creates a new key. The returned value is the only time the key
// itself is visible.
func (c *UserAPIKeyProviderClient) CreateAPIKey(ctx context.Context, name string) (*UserAPIKey, error) {
	if name == "" {
		return nil, ErrInvalidAPIKeyName
	}
	var key UserAPIKey
	if err := c.do(ctx, http.MethodPost, apiKeysPath, map[string]string{"name": name}, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// FetchAPIKey returns the key with the given id.
func (c *UserAPIKeyProviderClient) FetchAPIKey(ctx context.Context, id string) (*UserAPIKey, error) {
	var key UserAPIKey
	if err := c.do(ctx, http.MethodGet, apiKeyPath(id), nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// FetchAPIKeys returns all keys of the current user.
func (c *UserAPIKeyProviderClient) FetchAPIKeys(ctx context.Context) ([]UserAPIKey, error) {
	var keys []UserAPIKey
	if err := c.do(ctx, http.MethodGet, apiKeysPath, nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteAPIKey deletes the key with the given id.
func (c *UserAPIKeyProviderClient) DeleteAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, apiKeyPath(id), nil, nil)
}

// EnableAPIKey enables the key with the given id.
func (c *UserAPIKeyProviderClient) EnableAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, apiKeyPath(id)+"/enable", nil, nil)
}

// DisableAPIKey disables the key with the given id.
func (c *UserAPIKeyProviderClient) DisableAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, apiKeyPath(id)+"/disable", nil, nil)
}
