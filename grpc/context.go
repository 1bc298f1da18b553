// Package grpc lets gRPC clients authenticate with a stitch session. The
// session's access token travels as a bearer token in the call metadata, and a
// call rejected as Unauthenticated is retried once after a token refresh.
package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/panyam/stitch"
)

// Default metadata keys for authentication context.
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <access token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyUserID carries the id of the logged in stitch user
	DefaultMetadataKeyUserID = "x-stitch-user-id"
)

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAuthorization is the metadata key for the bearer token.
	// Defaults to "authorization".
	MetadataKeyAuthorization string

	// MetadataKeyUserID is the metadata key for the user id. Defaults to "x-stitch-user-id".
	MetadataKeyUserID string

	// SendUserID adds the user id next to the token.
	SendUserID bool

	// RequireTransportSecurity is reported by PerRPCCredentials.
	RequireTransportSecurity bool

	// PublicMethods are full method names ("/package.Service/Method") that are
	// called without credentials.
	PublicMethods map[string]bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyUserID:        DefaultMetadataKeyUserID,
		RequireTransportSecurity: true,
		PublicMethods:            make(map[string]bool),
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

func resolveConfig(config *Config) *Config {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return config
}

// TokenToOutgoingContext adds the bearer token to outgoing gRPC context metadata.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeyAuthorization)
}

// TokenToOutgoingContextWithKey adds the bearer token with a custom key.
func TokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, "Bearer "+token)
}

// TokenFromIncomingContext extracts the bearer token on the server side of a call.
// Returns empty string if there is none.
func TokenFromIncomingContext(ctx context.Context) string {
	return TokenFromIncomingContextWithConfig(ctx, nil)
}

// TokenFromIncomingContextWithConfig extracts the bearer token using the specified config.
func TokenFromIncomingContextWithConfig(ctx context.Context, config *Config) string {
	config = resolveConfig(config)
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(config.MetadataKeyAuthorization)
	if len(values) == 0 || !strings.HasPrefix(values[0], "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(values[0], "Bearer ")
}

// UserIDFromIncomingContext extracts the user id sent with SendUserID.
func UserIDFromIncomingContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(DefaultMetadataKeyUserID); len(values) > 0 {
		return values[0]
	}
	return ""
}

// withSession attaches the session's credentials to ctx and returns the token used.
func withSession(ctx context.Context, session *stitch.AuthSession, config *Config) (context.Context, string, error) {
	token, err := session.AccessToken()
	if err != nil {
		return nil, "", toStatus(err)
	}
	ctx = TokenToOutgoingContextWithKey(ctx, token, config.MetadataKeyAuthorization)
	if config.SendUserID {
		if u := session.CurrentUser(); u != nil {
			ctx = metadata.AppendToOutgoingContext(ctx, config.MetadataKeyUserID, u.ID)
		}
	}
	return ctx, token, nil
}

// toStatus maps session errors to gRPC status errors.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stitch.ErrMustAuthenticateFirst),
		errors.Is(err, stitch.ErrLoggedOutDuringRequest),
		errors.Is(err, stitch.ErrUserNoLongerValid),
		stitch.IsServiceError(err, stitch.ErrorCodeInvalidSession):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}
