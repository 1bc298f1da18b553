package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/panyam/stitch"
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that sends the
// session's access token with every call. A call failing with Unauthenticated
// is retried once after refreshing the token.
func UnaryClientInterceptor(session *stitch.AuthSession, config *Config) grpc.UnaryClientInterceptor {
	config = resolveConfig(config)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if config.PublicMethods[method] {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		authCtx, token, err := withSession(ctx, session, config)
		if err != nil {
			return err
		}
		err = invoker(authCtx, method, req, reply, cc, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return err
		}

		if _, rerr := session.RefreshStaleAccessToken(ctx, token); rerr != nil {
			return toStatus(rerr)
		}
		authCtx, _, err = withSession(ctx, session, config)
		if err != nil {
			return err
		}
		return invoker(authCtx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor. Opening a
// stream that fails with Unauthenticated is retried once after a refresh.
func StreamClientInterceptor(session *stitch.AuthSession, config *Config) grpc.StreamClientInterceptor {
	config = resolveConfig(config)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if config.PublicMethods[method] {
			return streamer(ctx, desc, cc, method, opts...)
		}

		authCtx, token, err := withSession(ctx, session, config)
		if err != nil {
			return nil, err
		}
		stream, err := streamer(authCtx, desc, cc, method, opts...)
		if status.Code(err) != codes.Unauthenticated {
			return stream, err
		}

		if _, rerr := session.RefreshStaleAccessToken(ctx, token); rerr != nil {
			return nil, toStatus(rerr)
		}
		authCtx, _, err = withSession(ctx, session, config)
		if err != nil {
			return nil, err
		}
		return streamer(authCtx, desc, cc, method, opts...)
	}
}

// sessionCredentials implements credentials.PerRPCCredentials.
type sessionCredentials struct {
	session *stitch.AuthSession
	config  *Config
}

var _ credentials.PerRPCCredentials = (*sessionCredentials)(nil)

// NewPerRPCCredentials returns credentials for grpc.WithPerRPCCredentials. They
// attach the current token but do not retry; use the interceptors for that.
func NewPerRPCCredentials(session *stitch.AuthSession, config *Config) credentials.PerRPCCredentials {
	return &sessionCredentials{session: session, config: resolveConfig(config)}
}

func (c *sessionCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := c.session.AccessToken()
	if err != nil {
		return nil, toStatus(err)
	}
	md := map[string]string{c.config.MetadataKeyAuthorization: "Bearer " + token}
	if c.config.SendUserID {
		if u := c.session.CurrentUser(); u != nil {
			md[c.config.MetadataKeyUserID] = u.ID
		}
	}
	return md, nil
}

func (c *sessionCredentials) RequireTransportSecurity() bool {
	return c.config.RequireTransportSecurity
}

// DialOptions returns the interceptors as dial options, ready for grpc.NewClient.
func DialOptions(session *stitch.AuthSession, config *Config) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithUnaryInterceptor(UnaryClientInterceptor(session, config)),
		grpc.WithStreamInterceptor(StreamClientInterceptor(session, config)),
	}
}
