package stitch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// AppClient is the entry point for one Stitch application: authentication,
// function calls and auth provider clients.
type AppClient struct {
	appID    string
	config   AppClientConfiguration
	requests *RequestClient
	auth     *AuthSession
}

// NewAppClient creates a client for appID and restores any persisted session.
func NewAppClient(ctx context.Context, appID string, config AppClientConfiguration) (*AppClient, error) {
	if appID == "" {
		return nil, fmt.Errorf("stitch: app id is required")
	}
	config.EnsureDefaults()

	requests := NewRequestClient(config.BaseURL,
		WithHTTPClient(config.HTTPClient),
		WithDefaultTimeout(config.RequestTimeout),
		WithRequestLogger(config.Logger))

	opts := []AuthOption{
		WithCredentialStore(config.Storage),
		WithLogger(config.Logger),
		WithDeviceInfo(DeviceInfo{AppName: config.LocalAppName, AppVersion: config.LocalAppVersion}),
	}
	if !config.DisableRefresher {
		opts = append(opts, WithTokenRefresher(config.RefreshInterval, config.RefreshThreshold))
	}

	auth, err := NewAuthSession(ctx, appID, requests, opts...)
	if err != nil {
		return nil, err
	}
	return &AppClient{
		appID:    appID,
		config:   config,
		requests: requests,
		auth:     auth,
	}, nil
}

// ID returns the client app id
func (c *AppClient) ID() string { return c.appID }

// Auth returns the client's authentication session.
func (c *AppClient) Auth() *AuthSession { return c.auth }

// Close stops background work. The persisted session is left in place.
func (c *AppClient) Close() {
	c.auth.Close()
}

type functionCall struct {
	Name      string `json:"name"`
	Service   string `json:"service,omitempty"`
	Arguments []any  `json:"arguments"`
}

// CallFunction calls the named app function with args and decodes its result
// into out. out may be nil when the result is not needed.
func (c *AppClient) CallFunction(ctx context.Context, name string, args []any, out any) error {
	return c.callFunction(ctx, name, "", args, 0, out)
}

// CallFunctionWithTimeout is CallFunction with a per-call timeout that overrides
// the client-wide default.
func (c *AppClient) CallFunctionWithTimeout(ctx context.Context, name string, args []any, timeout time.Duration, out any) error {
	return c.callFunction(ctx, name, "", args, timeout, out)
}

func (c *AppClient) callFunction(ctx context.Context, name, service string, args []any, timeout time.Duration, out any) error {
	if args == nil {
		args = []any{}
	}
	req, err := NewAuthJSONRequest(http.MethodPost, functionCallPath(c.appID), functionCall{
		Name:      name,
		Service:   service,
		Arguments: args,
	})
	if err != nil {
		return err
	}
	req.Timeout = timeout
	return c.auth.DoAuthenticatedJSON(ctx, req, out)
}

// ServiceClient returns a client for functions of the named service.
func (c *AppClient) ServiceClient(name string) *ServiceClient {
	return &ServiceClient{app: c, name: name}
}

// ServiceClient calls the functions of one named service through the
// authenticated pipeline of its AppClient.
type ServiceClient struct {
	app  *AppClient
	name string
}

// Name returns the service name
func (s *ServiceClient) Name() string { return s.name }

// CallFunction calls a function of the service and decodes its result into out.
func (s *ServiceClient) CallFunction(ctx context.Context, name string, args []any, out any) error {
	return s.app.callFunction(ctx, name, s.name, args, 0, out)
}

// CallFunctionWithTimeout is CallFunction with a per-call timeout.
func (s *ServiceClient) CallFunctionWithTimeout(ctx context.Context, name string, args []any, timeout time.Duration, out any) error {
	return s.app.callFunction(ctx, name, s.name, args, timeout, out)
}

// UserPasswordProvider returns the client for the local-userpass provider.
func (c *AppClient) UserPasswordProvider() *UserPasswordProviderClient {
	return &UserPasswordProviderClient{
		requests: c.requests,
		path:     providerPath(c.appID, string(ProviderTypeUserPassword)),
	}
}

// UserAPIKeyProvider returns the client for managing the current user's API keys.
func (c *AppClient) UserAPIKeyProvider() *UserAPIKeyProviderClient {
	return &UserAPIKeyProviderClient{auth: c.auth}
}
