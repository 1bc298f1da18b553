package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultRefreshInterval is how often the refresher checks the access token
	DefaultRefreshInterval = 5 * time.Minute

	// RefreshThreshold is how long before expiry to proactively refresh. It is
	// larger than the interval so a token is never missed between two ticks.
	RefreshThreshold = 10 * time.Minute
)

// AccessTokenRefresher periodically refreshes the session's access token before
// it expires. It is an optimization: the retry in DoAuthenticatedRequest keeps
// requests working without it.
type AccessTokenRefresher struct {
	session   *AuthSession
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAccessTokenRefresher creates a refresher for session. Call Start to run it.
func NewAccessTokenRefresher(session *AuthSession, interval, threshold time.Duration, logger *slog.Logger) *AccessTokenRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessTokenRefresher{
		session:   session,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Start launches the background loop. Starting a running refresher is a no-op.
func (r *AccessTokenRefresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop cancels the loop and waits for it to exit.
func (r *AccessTokenRefresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *AccessTokenRefresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.CheckNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("proactive token refresh failed", slog.Any("error", err))
			}
		}
	}
}

// CheckNow runs one refresh check. It reports whether a refresh was performed.
func (r *AccessTokenRefresher) CheckNow(ctx context.Context) (bool, error) {
	token, err := r.session.AccessToken()
	if err != nil {
		// Logged out; nothing to do.
		return false, nil
	}
	expiresAt, err := TokenExpiry(token)
	if err != nil {
		return false, err
	}
	if r.now().Add(r.threshold).Before(expiresAt) {
		return false, nil
	}
	if _, err := r.session.RefreshStaleAccessToken(ctx, token); err != nil {
		return false, err
	}
	return true, nil
}

// TokenExpiry returns the exp claim of a JWT access token without verifying
// its signature.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return exp.Time, nil
}
