// Package stitchtest provides an in-process fake Stitch server for tests.
//
// The server speaks the same wire format as the real client API: login, link,
// profile, session refresh/logout, function calls, local-userpass account
// management and user API keys. Access tokens are HS256 JWTs carrying sub and exp,
// so clients can decode their expiry. Every route counts its calls and records the
// last Authorization header, and failures can be injected per route.
package stitchtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Route names used by Calls, LastAuthorization and FailNext.
const (
	RouteLogin         = "login"
	RouteLink          = "link"
	RouteProfile       = "profile"
	RouteRefresh       = "refresh"
	RouteLogout        = "logout"
	RouteFunctionCall  = "function_call"
	RouteRegister      = "register"
	RouteConfirm       = "confirm"
	RouteResendConfirm = "resend_confirm"
	RouteReset         = "reset"
	RouteSendReset     = "send_reset"
	RouteAPIKeys       = "api_keys"
)

// DefaultAccessTokenTTL is the lifetime of issued access tokens.
const DefaultAccessTokenTTL = 30 * time.Minute

// FunctionHandler implements a server-side function.
type FunctionHandler func(args []any) (any, error)

type user struct {
	id         string
	userType   string
	identities []identity
	email      string
}

type identity struct {
	ID           string `json:"id"`
	ProviderType string `json:"provider_type"`
}

type failure struct {
	status  int
	code    string
	message string
}

type pendingToken struct {
	email    string
	token    string
	tokenID  string
	password string
}

type apiKey struct {
	ID       string `json:"_id"`
	Key      string `json:"key,omitempty"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
	userID   string
}

// Server is a fake Stitch server. Create it with NewServer and Close it when done.
type Server struct {
	*httptest.Server
	AppID string

	mu            sync.Mutex
	secret        []byte
	accessTTL     time.Duration
	generation    int
	loginDelay    time.Duration
	users         map[string]*user
	identities    map[string]string
	passwords     map[string]string
	refreshTokens map[string]string
	functions     map[string]FunctionHandler
	apiKeys       map[string]*apiKey
	pending       map[string]*pendingToken
	resets        map[string]*pendingToken
	calls         map[string]int
	lastAuth      map[string]string
	lastBody      map[string][]byte
	failures      map[string][]failure
}

// NewServer starts a fake server for appID.
func NewServer(appID string) *Server {
	s := &Server{
		AppID:         appID,
		secret:        []byte(uuid.NewString()),
		accessTTL:     DefaultAccessTokenTTL,
		users:         make(map[string]*user),
		identities:    make(map[string]string),
		passwords:     make(map[string]string),
		refreshTokens: make(map[string]string),
		functions:     make(map[string]FunctionHandler),
		apiKeys:       make(map[string]*apiKey),
		pending:       make(map[string]*pendingToken),
		resets:        make(map[string]*pendingToken),
		calls:         make(map[string]int),
		lastAuth:      make(map[string]string),
		lastBody:      make(map[string][]byte),
		failures:      make(map[string][]failure),
	}
	s.functions["echo"] = echoFunction
	s.functions["sum"] = sumFunction
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	app := r.PathPrefix("/api/client/v2.0/app/{appID}").Subrouter()
	app.HandleFunc("/auth/providers/{provider}/login", s.route(RouteLink, s.handleLink)).
		Methods(http.MethodPost).Queries("link", "true")
	app.HandleFunc("/auth/providers/{provider}/login", s.route(RouteLogin, s.handleLogin)).
		Methods(http.MethodPost)
	app.HandleFunc("/auth/providers/local-userpass/register", s.route(RouteRegister, s.handleRegister)).
		Methods(http.MethodPost)
	app.HandleFunc("/auth/providers/local-userpass/confirm", s.route(RouteConfirm, s.handleConfirm)).
		Methods(http.MethodPost)
	app.HandleFunc("/auth/providers/local-userpass/confirm/send", s.route(RouteResendConfirm, s.handleResendConfirm)).
		Methods(http.MethodPost)
	app.HandleFunc("/auth/providers/local-userpass/reset", s.route(RouteReset, s.handleReset)).
		Methods(http.MethodPost)
	app.HandleFunc("/auth/providers/local-userpass/reset/send", s.route(RouteSendReset, s.handleSendReset)).
		Methods(http.MethodPost)
	app.HandleFunc("/functions/call", s.route(RouteFunctionCall, s.handleFunctionCall)).
		Methods(http.MethodPost)

	auth := r.PathPrefix("/api/client/v2.0/auth").Subrouter()
	auth.HandleFunc("/profile", s.route(RouteProfile, s.handleProfile)).Methods(http.MethodGet)
	auth.HandleFunc("/session", s.route(RouteRefresh, s.handleRefresh)).Methods(http.MethodPost)
	auth.HandleFunc("/session", s.route(RouteLogout, s.handleLogout)).Methods(http.MethodDelete)
	auth.HandleFunc("/api_keys", s.route(RouteAPIKeys, s.handleAPIKeys)).Methods(http.MethodGet, http.MethodPost)
	auth.HandleFunc("/api_keys/{id}", s.route(RouteAPIKeys, s.handleAPIKey)).Methods(http.MethodGet, http.MethodDelete)
	auth.HandleFunc("/api_keys/{id}/{action:enable|disable}", s.route(RouteAPIKeys, s.handleAPIKeyToggle)).Methods(http.MethodPut)
	return r
}

// route wraps h with call counting and failure injection.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		s.mu.Lock()
		s.calls[name]++
		s.lastAuth[name] = r.Header.Get("Authorization")
		s.lastBody[name] = body
		var injected *failure
		if q := s.failures[name]; len(q) > 0 {
			injected = &q[0]
			s.failures[name] = q[1:]
		}
		s.mu.Unlock()

		if injected != nil {
			writeError(w, injected.status, injected.code, injected.message)
			return
		}
		if vars := mux.Vars(r); vars["appID"] != "" && vars["appID"] != s.AppID {
			writeError(w, http.StatusNotFound, "AppNotFound", "app not found")
			return
		}
		h(w, r)
	}
}

// Calls returns how many requests the named route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// LastAuthorization returns the Authorization header of the last request to route.
func (s *Server) LastAuthorization(route string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth[route]
}

// LastBody returns the decoded JSON body of the last request to route.
func (s *Server) LastBody(route string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out map[string]any
	_ = json.Unmarshal(s.lastBody[route], &out)
	return out
}

// FailNext makes the next request to route fail with the given status and error code.
// Calls queue up.
func (s *Server) FailNext(route string, status int, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, code: code, message: message})
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]string)
}

// SetAccessTokenTTL changes the lifetime of access tokens issued from now on.
func (s *Server) SetAccessTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// SetLoginDelay makes every login wait d before responding.
func (s *Server) SetLoginDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginDelay = d
}

// HandleFunction registers fn under name. Service functions are registered as
// "service/name".
func (s *Server) HandleFunction(name string, fn FunctionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[name] = fn
}

// AddUserPassword creates a confirmed local-userpass user and returns its id.
func (s *Server) AddUserPassword(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[email] = password
	return s.userForIdentityLocked("local-userpass", email, email).id
}

// UserCount returns the number of users created so far.
func (s *Server) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// IssueAccessToken mints an access token for userID that expires after ttl.
func (s *Server) IssueAccessToken(userID string, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, _ := s.accessTokenLocked(userID, ttl)
	return tok
}

// PendingConfirmation returns the token and token id mailed to email on registration.
func (s *Server) PendingConfirmation(email string) (token, tokenID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		if p.email == email {
			return p.token, p.tokenID, true
		}
	}
	return "", "", false
}

// PendingReset returns the token and token id mailed to email for a password reset.
func (s *Server) PendingReset(email string) (token, tokenID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.resets {
		if p.email == email {
			return p.token, p.tokenID, true
		}
	}
	return "", "", false
}

func (s *Server) userForIdentityLocked(providerType, identityID, email string) *user {
	key := providerType + ":" + identityID
	if id, ok := s.identities[key]; ok {
		return s.users[id]
	}
	u := &user{
		id:         strings.ReplaceAll(uuid.NewString(), "-", ""),
		userType:   "normal",
		identities: []identity{{ID: identityID, ProviderType: providerType}},
		email:      email,
	}
	s.users[u.id] = u
	s.identities[key] = u.id
	return u
}

// accessTokenLocked creates a signed JWT access token
func (s *Server) accessTokenLocked(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"gen": s.generation,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// validateAccessLocked returns the user id of a valid access token.
func (s *Server) validateAccessLocked(r *http.Request) (*user, bool) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return nil, false
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	if gen, ok := claims["gen"].(float64); !ok || int(gen) != s.generation {
		return nil, false
	}
	sub, _ := claims.GetSubject()
	u, ok := s.users[sub]
	return u, ok
}

func (s *Server) validateRefreshLocked(r *http.Request) (*user, string, bool) {
	tok := bearerToken(r)
	id, ok := s.refreshTokens[tok]
	if !ok {
		return nil, "", false
	}
	u, ok := s.users[id]
	return u, tok, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
