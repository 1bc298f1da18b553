package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// SDKVersion is reported to the server in the device options of every login.
const SDKVersion = "4.1.0"

// DeviceInfo describes the local application to the server at login time.
type DeviceInfo struct {
	AppName    string
	AppVersion string
}

// AuthSession owns the session state of one app client. It is the only component
// that starts or ends a session or attaches tokens to outgoing requests.
//
// Mutations (login, logout, link, refresh) hold the write lock for their entire
// duration, network calls included. Readers take the read lock.
type AuthSession struct {
	mu       sync.RWMutex
	info     authInfo
	user     *User
	appID    string
	requests *RequestClient
	store    CredentialStore
	storeKey string
	device   DeviceInfo
	logger   *slog.Logger
	now      func() time.Time

	listenersMu    sync.Mutex
	listeners      []registeredListener
	nextListenerID int

	// pending holds events not yet delivered. Only the goroutine that set
	// draining delivers them, so listeners see events in mutation order.
	eventsMu sync.Mutex
	pending  []AuthEvent
	draining bool

	refreshInterval  time.Duration
	refreshThreshold time.Duration
	refresher        *AccessTokenRefresher
}

type registeredListener struct {
	id int
	l  AuthListener
}

// AuthOption configures an AuthSession
type AuthOption func(*AuthSession)

// WithCredentialStore sets where session state is persisted. Defaults to memory.
func WithCredentialStore(store CredentialStore) AuthOption {
	return func(s *AuthSession) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) AuthOption {
	return func(s *AuthSession) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDeviceInfo sets the application name and version reported at login.
func WithDeviceInfo(info DeviceInfo) AuthOption {
	return func(s *AuthSession) {
		s.device = info
	}
}

// WithTokenRefresher starts a background AccessTokenRefresher with the given
// interval and threshold. Zero values take the package defaults.
func WithTokenRefresher(interval, threshold time.Duration) AuthOption {
	return func(s *AuthSession) {
		if interval <= 0 {
			interval = DefaultRefreshInterval
		}
		if threshold <= 0 {
			threshold = RefreshThreshold
		}
		s.refreshInterval = interval
		s.refreshThreshold = threshold
	}
}

// NewAuthSession creates a session for appID and hydrates it from the credential store.
func NewAuthSession(ctx context.Context, appID string, requests *RequestClient, opts ...AuthOption) (*AuthSession, error) {
	s := &AuthSession{
		appID:    appID,
		requests: requests,
		store:    NewMemoryCredentialStore(),
		storeKey: authInfoKey(appID),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("app_id", appID))

	info, err := readAuthInfo(ctx, s.store, s.storeKey)
	if errors.Is(err, errCorruptAuthInfo) {
		s.logger.Warn("discarding stored auth info", slog.Any("error", err))
		info, err = authInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auth info: %w", err)
	}
	s.info = info
	if info.isLoggedIn() {
		s.user = newUser(info, s.now())
	}

	if s.refreshInterval > 0 {
		s.refresher = NewAccessTokenRefresher(s, s.refreshInterval, s.refreshThreshold, s.logger)
		s.refresher.Start()
	}
	return s, nil
}

// Close stops the background refresher, if one was started.
func (s *AuthSession) Close() {
	if s.refresher != nil {
		s.refresher.Stop()
	}
}

// IsLoggedIn reports whether there is an active session.
func (s *AuthSession) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.isLoggedIn()
}

// CurrentUser returns a snapshot of the logged in user, or nil when logged out.
func (s *AuthSession) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// DeviceID returns the server-assigned device id, which survives logout.
func (s *AuthSession) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.DeviceID
}

// AccessToken returns the current access token.
func (s *AuthSession) AccessToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.info.isLoggedIn() {
		return "", ErrMustAuthenticateFirst
	}
	return s.info.AccessToken, nil
}

// AddAuthListener registers l and returns a function that removes it.
func (s *AuthSession) AddAuthListener(l AuthListener) (remove func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.nextListenerID++
	id := s.nextListenerID
	s.listeners = append(s.listeners, registeredListener{id: id, l: l})
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, rl := range s.listeners {
			if rl.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// unlockAndDispatch queues events while s.mu is still held, releases s.mu and
// then delivers whatever is queued. If another goroutine is already delivering,
// it picks up these events after its own and this call returns at once.
// Listeners may call back into the session.
func (s *AuthSession) unlockAndDispatch(events []AuthEvent) {
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}
	s.eventsMu.Lock()
	s.pending = append(s.pending, events...)
	if s.draining {
		s.eventsMu.Unlock()
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.eventsMu.Unlock()
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.eventsMu.Lock()
			s.draining = false
			s.eventsMu.Unlock()
			panic(r)
		}
	}()
	for {
		s.eventsMu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.eventsMu.Unlock()
			return
		}
		e := s.pending[0]
		s.pending = s.pending[1:]
		s.eventsMu.Unlock()

		s.listenersMu.Lock()
		listeners := append([]registeredListener(nil), s.listeners...)
		s.listenersMu.Unlock()
		for _, rl := range listeners {
			rl.l.OnAuthEvent(e)
		}
	}
}

// Login authenticates with cred. Logging in anonymously while an anonymous
// session through the same provider is active returns the current user without
// a network call. A failed login leaves the existing session untouched.
func (s *AuthSession) Login(ctx context.Context, cred Credential) (*User, error) {
	if cred == nil {
		return nil, ErrNilCredential
	}
	s.mu.Lock()
	user, events, err := s.loginLocked(ctx, cred, true)
	s.unlockAndDispatch(events)
	return user, err
}

// Switch logs in with cred and then ends the previous session, if any. Unlike
// Login it never reuses the existing session.
func (s *AuthSession) Switch(ctx context.Context, cred Credential) (*User, error) {
	if cred == nil {
		return nil, ErrNilCredential
	}
	s.mu.Lock()
	user, events, err := s.loginLocked(ctx, cred, false)
	s.unlockAndDispatch(events)
	return user, err
}

// Logout ends the session. The server-side invalidation is best effort; local
// state is always cleared. Logging out while logged out is a no-op.
func (s *AuthSession) Logout(ctx context.Context) error {
	s.mu.Lock()
	events := s.logoutLocked(ctx)
	s.unlockAndDispatch(events)
	return nil
}

// LinkWithCredential attaches the identity behind cred to the current user.
func (s *AuthSession) LinkWithCredential(ctx context.Context, cred Credential) (*User, error) {
	if cred == nil {
		return nil, ErrNilCredential
	}
	s.mu.Lock()
	user, events, err := s.linkLocked(ctx, cred)
	s.unlockAndDispatch(events)
	return user, err
}

// RefreshAccessToken exchanges the refresh token for a new access token. Only
// the access token changes.
func (s *AuthSession) RefreshAccessToken(ctx context.Context) error {
	s.mu.Lock()
	events, err := s.refreshAccessTokenLocked(ctx)
	s.unlockAndDispatch(events)
	return err
}

// RefreshStaleAccessToken refreshes the access token only if it is still stale,
// the token a request was just rejected with. If another caller has refreshed in
// the meantime, the current token is returned without a network call.
func (s *AuthSession) RefreshStaleAccessToken(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	token, events, err := s.refreshIfStaleLocked(ctx, "", stale)
	s.unlockAndDispatch(events)
	return token, err
}

type loginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
}

type profileResponse struct {
	UserID     string      `json:"user_id"`
	UserType   UserType    `json:"type"`
	Identities []Identity  `json:"identities"`
	Data       ProfileData `json:"data"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// loginLocked performs the login. Caller must hold s.mu for writing.
func (s *AuthSession) loginLocked(ctx context.Context, cred Credential, allowReuse bool) (*User, []AuthEvent, error) {
	if allowReuse && s.info.isLoggedIn() && reusesExistingSession(cred) &&
		s.info.LoggedInProviderType == string(cred.ProviderType()) &&
		s.info.LoggedInProviderName == cred.ProviderName() {
		return s.user, nil, nil
	}

	body := credentialMaterial(cred)
	body["options"] = map[string]any{"device": s.deviceOptionsLocked()}
	resp, err := s.requests.DoJSON(ctx, http.MethodPost, loginPath(s.appID, cred.ProviderName()), body)
	if err != nil {
		return nil, nil, err
	}
	var lr loginResponse
	if err := resp.Decode(&lr); err != nil {
		return nil, nil, err
	}
	if lr.UserID == "" || lr.AccessToken == "" || lr.RefreshToken == "" {
		return nil, nil, &RequestError{Kind: RequestErrorDecoding, Err: errors.New("incomplete login response")}
	}

	profile, err := s.fetchProfile(ctx, lr.AccessToken)
	if err != nil {
		s.invalidateSessionLocked(ctx, lr.RefreshToken)
		return nil, nil, err
	}

	next := authInfo{
		UserID:               lr.UserID,
		DeviceID:             lr.DeviceID,
		AccessToken:          lr.AccessToken,
		RefreshToken:         lr.RefreshToken,
		LoggedInProviderType: string(cred.ProviderType()),
		LoggedInProviderName: cred.ProviderName(),
		Profile:              profile,
	}
	if next.DeviceID == "" {
		next.DeviceID = s.info.DeviceID
	}

	var events []AuthEvent
	previous := s.user
	if s.info.isLoggedIn() {
		// The new session is already established; ending the old one is best effort.
		s.invalidateSessionLocked(ctx, s.info.RefreshToken)
		events = append(events, AuthEvent{Kind: UserLoggedOut, Previous: previous})
	}
	events = append(events, s.commitLocked(ctx, next)...)
	events = append(events, AuthEvent{Kind: UserLoggedIn, User: s.user, Previous: previous})
	if previous == nil || previous.ID != s.user.ID {
		events = append(events, AuthEvent{Kind: ActiveUserChanged, User: s.user, Previous: previous})
	}

	s.logger.Info("logged in",
		slog.String("user_id", lr.UserID),
		slog.String("provider", cred.ProviderName()))
	return s.user, events, nil
}

// logoutLocked clears the session. Caller must hold s.mu for writing.
func (s *AuthSession) logoutLocked(ctx context.Context) []AuthEvent {
	if !s.info.isLoggedIn() {
		return nil
	}
	s.invalidateSessionLocked(ctx, s.info.RefreshToken)
	return s.clearLocked(ctx)
}

// clearLocked drops the local session without contacting the server.
// Caller must hold s.mu for writing.
func (s *AuthSession) clearLocked(ctx context.Context) []AuthEvent {
	previous := s.user
	events := s.commitLocked(ctx, s.info.loggedOut())
	events = append(events,
		AuthEvent{Kind: UserLoggedOut, Previous: previous},
		AuthEvent{Kind: ActiveUserChanged, Previous: previous})
	s.logger.Info("logged out", slog.String("user_id", previous.ID))
	return events
}

// invalidateSessionLocked asks the server to end the session for refreshToken.
// Failures are logged and ignored.
func (s *AuthSession) invalidateSessionLocked(ctx context.Context, refreshToken string) {
	_, err := s.requests.DoRequest(ctx, &Request{
		Method: http.MethodDelete,
		Path:   sessionPath,
		Header: bearer(refreshToken),
	})
	if err != nil {
		s.logger.Debug("server-side logout failed", slog.Any("error", err))
	}
}

// linkLocked links cred to the current user. Caller must hold s.mu for writing.
func (s *AuthSession) linkLocked(ctx context.Context, cred Credential) (*User, []AuthEvent, error) {
	if !s.info.isLoggedIn() {
		return nil, nil, ErrMustAuthenticateFirst
	}

	body := credentialMaterial(cred)
	body["options"] = map[string]any{"device": s.deviceOptionsLocked()}
	req, err := newJSONRequest(http.MethodPost, linkPath(s.appID, cred.ProviderName()), body)
	if err != nil {
		return nil, nil, err
	}
	resp, events, err := s.doAuthenticatedRequestLocked(ctx, &AuthRequest{Request: *req})
	if err != nil {
		return nil, events, err
	}
	var lr loginResponse
	if err := resp.Decode(&lr); err != nil {
		return nil, events, err
	}
	if lr.UserID != "" && lr.UserID != s.info.UserID {
		return nil, events, ErrUserNoLongerValid
	}

	profile, err := s.fetchProfile(ctx, s.info.AccessToken)
	if err != nil {
		return nil, events, err
	}
	previous := s.user
	events = append(events, s.commitLocked(ctx, s.info.withProfile(profile))...)
	events = append(events, AuthEvent{Kind: UserLinked, User: s.user, Previous: previous})
	return s.user, events, nil
}

// refreshAccessTokenLocked performs the refresh. Caller must hold s.mu for writing.
func (s *AuthSession) refreshAccessTokenLocked(ctx context.Context) ([]AuthEvent, error) {
	if !s.info.isLoggedIn() {
		return nil, ErrMustAuthenticateFirst
	}
	resp, err := s.requests.DoRequest(ctx, &Request{
		Method: http.MethodPost,
		Path:   sessionPath,
		Header: bearer(s.info.RefreshToken),
	})
	if err != nil {
		if IsServiceError(err, ErrorCodeInvalidSession) {
			// The refresh token is dead, so is the session.
			return s.clearLocked(ctx), err
		}
		return nil, err
	}
	var rr refreshResponse
	if err := resp.Decode(&rr); err != nil {
		return nil, err
	}
	if rr.AccessToken == "" {
		return nil, &RequestError{Kind: RequestErrorDecoding, Err: errors.New("refresh response has no access token")}
	}

	events := s.commitLocked(ctx, s.info.withAccessToken(rr.AccessToken))
	events = append(events, AuthEvent{Kind: AccessTokenRefreshed, User: s.user})
	return events, nil
}

// refreshIfStaleLocked refreshes unless the session has moved on since a request
// was sent with stale for userID (empty userID skips the user check).
// Caller must hold s.mu for writing.
func (s *AuthSession) refreshIfStaleLocked(ctx context.Context, userID, stale string) (string, []AuthEvent, error) {
	if !s.info.isLoggedIn() {
		return "", nil, ErrLoggedOutDuringRequest
	}
	if userID != "" && s.info.UserID != userID {
		return "", nil, ErrUserNoLongerValid
	}
	if s.info.AccessToken != stale {
		return s.info.AccessToken, nil, nil
	}
	events, err := s.refreshAccessTokenLocked(ctx)
	if err != nil {
		return "", events, err
	}
	return s.info.AccessToken, events, nil
}

// commitLocked replaces the session state and persists it. A persistence failure
// is logged and reported as a PersistenceFailed event; it does not fail the
// mutation. Caller must hold s.mu for writing.
func (s *AuthSession) commitLocked(ctx context.Context, next authInfo) []AuthEvent {
	s.info = next
	if next.isLoggedIn() {
		s.user = newUser(next, s.now())
	} else {
		s.user = nil
	}

	if err := writeAuthInfo(ctx, s.store, s.storeKey, next); err != nil {
		s.logger.Warn("failed to persist auth info", slog.Any("error", err))
		return []AuthEvent{{
			Kind: PersistenceFailed,
			User: s.user,
			Err:  fmt.Errorf("failed to persist auth info: %w", err),
		}}
	}
	return nil
}

func (s *AuthSession) fetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	resp, err := s.requests.DoRequest(ctx, &Request{
		Method: http.MethodGet,
		Path:   profilePath,
		Header: bearer(accessToken),
	})
	if err != nil {
		return nil, err
	}
	var pr profileResponse
	if err := resp.Decode(&pr); err != nil {
		return nil, err
	}
	return &UserProfile{
		UserType:   pr.UserType,
		Identities: pr.Identities,
		Data:       pr.Data,
	}, nil
}

func (s *AuthSession) deviceOptionsLocked() map[string]any {
	device := map[string]any{
		"appId":           s.device.AppName,
		"appVersion":      s.device.AppVersion,
		"platform":        runtime.GOOS,
		"platformVersion": runtime.Version(),
		"sdkVersion":      SDKVersion,
	}
	if s.info.DeviceID != "" {
		device["deviceId"] = s.info.DeviceID
	}
	return device
}
