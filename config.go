package stitch

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the hosted Stitch endpoint.
const DefaultBaseURL = "https://stitch.mongodb.com"

// AppClientConfiguration holds the settings for one app client.
type AppClientConfiguration struct {
	// BaseURL of the Stitch server. Defaults to DefaultBaseURL.
	BaseURL string

	// LocalAppName and LocalAppVersion are reported to the server at login.
	LocalAppName    string
	LocalAppVersion string

	// Storage persists the session between runs. Defaults to an in-memory store.
	Storage CredentialStore

	// HTTPClient performs round trips. Defaults to a plain http.Client.
	HTTPClient *http.Client

	// RequestTimeout is the client-wide default per-request timeout.
	// Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RefreshInterval and RefreshThreshold tune the background token refresher.
	RefreshInterval  time.Duration
	RefreshThreshold time.Duration

	// DisableRefresher turns the background token refresher off.
	DisableRefresher bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// EnsureDefaults fills in default values for any unset fields.
func (c *AppClientConfiguration) EnsureDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Storage == nil {
		c.Storage = NewMemoryCredentialStore()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = RefreshThreshold
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
