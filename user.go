package stitch

import "time"

// User is a read-only snapshot of the authenticated identity. A new User is
// produced on every login, link and refresh; existing values are never mutated.
type User struct {
	ID                   string
	DeviceID             string
	LoggedInProviderType ProviderType
	LoggedInProviderName string
	Profile              *UserProfile
	IsLoggedIn           bool
	LastAuthActivity     time.Time
}

// UserType returns the profile's user type, or "" if no profile is attached.
func (u *User) UserType() UserType {
	if u.Profile == nil {
		return ""
	}
	return u.Profile.UserType
}

// Identities returns a copy of the user's linked identities.
func (u *User) Identities() []Identity {
	if u.Profile == nil {
		return nil
	}
	return append([]Identity(nil), u.Profile.Identities...)
}

func newUser(a authInfo, at time.Time) *User {
	return &User{
		ID:                   a.UserID,
		DeviceID:             a.DeviceID,
		LoggedInProviderType: ProviderType(a.LoggedInProviderType),
		LoggedInProviderName: a.LoggedInProviderName,
		Profile:              a.Profile.clone(),
		IsLoggedIn:           a.isLoggedIn(),
		LastAuthActivity:     at,
	}
}
