package stitch

// AuthEventKind identifies what changed in an AuthSession.
type AuthEventKind int

const (
	UserLoggedIn AuthEventKind = iota
	UserLoggedOut
	UserLinked
	ActiveUserChanged
	AccessTokenRefreshed
	// PersistenceFailed reports that a successful mutation could not be written to
	// the CredentialStore. The in-memory session is correct; only the next launch
	// is affected.
	PersistenceFailed
)

func (k AuthEventKind) String() string {
	switch k {
	case UserLoggedIn:
		return "user_logged_in"
	case UserLoggedOut:
		return "user_logged_out"
	case UserLinked:
		return "user_linked"
	case ActiveUserChanged:
		return "active_user_changed"
	case AccessTokenRefreshed:
		return "access_token_refreshed"
	case PersistenceFailed:
		return "persistence_failed"
	}
	return "unknown"
}

// AuthEvent describes one auth-state change. User is the snapshot after the change
// (nil once logged out), Previous the one before it.
type AuthEvent struct {
	Kind     AuthEventKind
	User     *User
	Previous *User
	Err      error
}

// AuthListener is notified of auth-state changes. Listeners run after the session
// lock is released, so they may call back into the session.
type AuthListener interface {
	OnAuthEvent(AuthEvent)
}

// AuthListenerFunc adapts a function to AuthListener.
type AuthListenerFunc func(AuthEvent)

func (f AuthListenerFunc) OnAuthEvent(e AuthEvent) { f(e) }
