package grpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/panyam/stitch"
	"github.com/panyam/stitch/stitchtest"
)

const testAppID = "grpc-app"

func newSession(t *testing.T, loggedIn bool) (*stitchtest.Server, *stitch.AuthSession) {
	t.Helper()
	srv := stitchtest.NewServer(testAppID)
	t.Cleanup(srv.Close)
	client, err := stitch.NewAppClient(context.Background(), testAppID, stitch.AppClientConfiguration{
		BaseURL:          srv.URL,
		DisableRefresher: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	if loggedIn {
		_, err = client.Auth().Login(context.Background(), stitch.AnonymousCredential{})
		require.NoError(t, err)
	}
	return srv, client.Auth()
}

func outgoingToken(ctx context.Context) string {
	md, _ := metadata.FromOutgoingContext(ctx)
	values := md.Get(DefaultMetadataKeyAuthorization)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// recordingInvoker fails the first n calls with code and records the tokens it saw.
type recordingInvoker struct {
	mu     sync.Mutex
	fail   int
	code   codes.Code
	calls  int
	tokens []string
}

func (r *recordingInvoker) invoke(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	md, _ := metadata.FromOutgoingContext(ctx)
	r.tokens = append(r.tokens, md.Get(DefaultMetadataKeyAuthorization)...)
	r.calls++
	if r.calls <= r.fail {
		return status.Error(r.code, "rejected")
	}
	return nil
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "authorization", config.MetadataKeyAuthorization)
	assert.True(t, config.RequireTransportSecurity)

	empty := &Config{}
	empty.EnsureDefaults()
	assert.Equal(t, DefaultMetadataKeyUserID, empty.MetadataKeyUserID)
	assert.NotNil(t, empty.PublicMethods)
}

func TestUnaryClientInterceptor_AttachesToken(t *testing.T) {
	_, session := newSession(t, true)
	token, _ := session.AccessToken()

	inv := &recordingInvoker{}
	interceptor := UnaryClientInterceptor(session, nil)
	require.NoError(t, interceptor(context.Background(), "/pkg.Svc/Method", nil, nil, nil, inv.invoke))
	assert.Equal(t, []string{"Bearer " + token}, inv.tokens)
}

func TestUnaryClientInterceptor_LoggedOut(t *testing.T) {
	_, session := newSession(t, false)

	inv := &recordingInvoker{}
	err := UnaryClientInterceptor(session, nil)(context.Background(), "/pkg.Svc/Method", nil, nil, nil, inv.invoke)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Empty(t, inv.tokens)
}

func TestUnaryClientInterceptor_PublicMethod(t *testing.T) {
	_, session := newSession(t, false)
	config := DefaultConfig()
	config.PublicMethods["/pkg.Svc/Open"] = true

	inv := &recordingInvoker{}
	require.NoError(t, UnaryClientInterceptor(session, config)(context.Background(), "/pkg.Svc/Open", nil, nil, nil, inv.invoke))
	assert.Equal(t, 1, inv.calls)
	assert.Empty(t, inv.tokens)
}

func TestUnaryClientInterceptor_RefreshesOnce(t *testing.T) {
	srv, session := newSession(t, true)
	first, _ := session.AccessToken()

	inv := &recordingInvoker{fail: 1, code: codes.Unauthenticated}
	require.NoError(t, UnaryClientInterceptor(session, nil)(context.Background(), "/pkg.Svc/Method", nil, nil, nil, inv.invoke))

	second, _ := session.AccessToken()
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"Bearer " + first, "Bearer " + second}, inv.tokens)
	assert.Equal(t, 1, srv.Calls(stitchtest.RouteRefresh))
}

func TestUnaryClientInterceptor_AtMostOneRetry(t *testing.T) {
	srv, session := newSession(t, true)

	inv := &recordingInvoker{fail: 10, code: codes.Unauthenticated}
	err := UnaryClientInterceptor(session, nil)(context.Background(), "/pkg.Svc/Method", nil, nil, nil, inv.invoke)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Len(t, inv.tokens, 2)
	assert.Equal(t, 1, srv.Calls(stitchtest.RouteRefresh))
}

func TestUnaryClientInterceptor_OtherErrorsPassThrough(t *testing.T) {
	srv, session := newSession(t, true)

	inv := &recordingInvoker{fail: 1, code: codes.NotFound}
	err := UnaryClientInterceptor(session, nil)(context.Background(), "/pkg.Svc/Method", nil, nil, nil, inv.invoke)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Len(t, inv.tokens, 1)
	assert.Equal(t, 0, srv.Calls(stitchtest.RouteRefresh))
}

func TestUnaryClientInterceptor_DeadRefreshToken(t *testing.T) {
	srv, session := newSession(t, true)
	srv.RevokeRefreshTokens()

	inv := &recordingInvoker{fail: 1, code: codes.Unauthenticated}
	err := UnaryClientInterceptor(session, nil)(context.Background(), "/pkg.Svc/Method", nil, nil, nil, inv.invoke)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, session.IsLoggedIn())
}

func TestStreamClientInterceptor_RefreshesOnce(t *testing.T) {
	srv, session := newSession(t, true)

	var tokens []string
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		tokens = append(tokens, outgoingToken(ctx))
		if len(tokens) == 1 {
			return nil, status.Error(codes.Unauthenticated, "expired")
		}
		return nil, nil
	}
	_, err := StreamClientInterceptor(session, nil)(context.Background(), &grpc.StreamDesc{}, nil, "/pkg.Svc/Stream", streamer)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0], tokens[1])
	assert.Equal(t, 1, srv.Calls(stitchtest.RouteRefresh))
}

func TestPerRPCCredentials(t *testing.T) {
	_, session := newSession(t, true)
	token, _ := session.AccessToken()

	config := DefaultConfig()
	config.SendUserID = true
	config.RequireTransportSecurity = false
	creds := NewPerRPCCredentials(session, config)

	md, err := creds.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, md["authorization"])
	assert.Equal(t, session.CurrentUser().ID, md[DefaultMetadataKeyUserID])
	assert.False(t, creds.RequireTransportSecurity())

	require.NoError(t, session.Logout(context.Background()))
	_, err = creds.GetRequestMetadata(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestTokenFromIncomingContext(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc", DefaultMetadataKeyUserID, "u1"))
	assert.Equal(t, "abc", TokenFromIncomingContext(ctx))
	assert.Equal(t, "u1", UserIDFromIncomingContext(ctx))

	assert.Empty(t, TokenFromIncomingContext(context.Background()))
	basic := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc"))
	assert.Empty(t, TokenFromIncomingContext(basic))
}

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))
	assert.Equal(t, codes.Unauthenticated, status.Code(toStatus(stitch.ErrMustAuthenticateFirst)))
	assert.Equal(t, codes.Unauthenticated, status.Code(toStatus(&stitch.ServiceError{Code: stitch.ErrorCodeInvalidSession})))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.Unavailable, status.Code(toStatus(errors.New("boom"))))
}

// validatingInterceptor accepts a call only if the stitch server accepts its token.
func validatingInterceptor(baseURL string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		token := TokenFromIncomingContext(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/client/v2.0/auth/profile", nil)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(ctx, req)
	}
}

func TestEndToEnd_HealthCheckAfterExpiry(t *testing.T) {
	srv, session := newSession(t, true)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(validatingInterceptor(srv.URL)))
	healthpb.RegisterHealthServer(server, health.NewServer())
	go server.Serve(lis)
	defer server.Stop()

	opts := append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, DialOptions(session, nil)...)
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	assert.Equal(t, 0, srv.Calls(stitchtest.RouteRefresh))

	srv.ExpireAccessTokens()
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	assert.Equal(t, 1, srv.Calls(stitchtest.RouteRefresh))
}
