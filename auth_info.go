package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var errCorruptAuthInfo = errors.New("stored auth info is corrupt")

// UserType distinguishes regular users from server (API key) users.
type UserType string

const (
	UserTypeNormal UserType = "normal"
	UserTypeServer UserType = "server"
)

// Identity is one login identity attached to a user.
type Identity struct {
	ID           string `json:"id"`
	ProviderType string `json:"provider_type"`
}

// ProfileData holds the extended profile fields the server may report.
type ProfileData struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	PictureURL string `json:"picture_url,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Birthday   string `json:"birthday,omitempty"`
	MinAge     string `json:"min_age,omitempty"`
	MaxAge     string `json:"max_age,omitempty"`
}

// UserProfile is the profile of the logged in user.
type UserProfile struct {
	UserType   UserType    `json:"type"`
	Identities []Identity  `json:"identities"`
	Data       ProfileData `json:"data"`
}

func (p *UserProfile) clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	if p.Identities != nil {
		out.Identities = append([]Identity(nil), p.Identities...)
	}
	return &out
}

// authInfo is the session state owned by AuthSession. It is also the
// persisted record, one per app client id.
type authInfo struct {
	UserID               string       `json:"user_id,omitempty"`
	DeviceID             string       `json:"device_id,omitempty"`
	AccessToken          string       `json:"access_token,omitempty"`
	RefreshToken         string       `json:"refresh_token,omitempty"`
	LoggedInProviderType string       `json:"logged_in_provider_type,omitempty"`
	LoggedInProviderName string       `json:"logged_in_provider_name,omitempty"`
	Profile              *UserProfile `json:"user_profile,omitempty"`
}

func (a authInfo) isLoggedIn() bool {
	return a.UserID != "" && a.AccessToken != ""
}

// isConsistent reports whether the session fields are all present or all absent.
func (a authInfo) isConsistent() bool {
	present := []bool{
		a.UserID != "",
		a.AccessToken != "",
		a.RefreshToken != "",
		a.LoggedInProviderType != "",
		a.LoggedInProviderName != "",
		a.Profile != nil,
	}
	for _, p := range present[1:] {
		if p != present[0] {
			return false
		}
	}
	return true
}

// loggedOut returns the state after logout: only the device id survives.
func (a authInfo) loggedOut() authInfo {
	return authInfo{DeviceID: a.DeviceID}
}

func (a authInfo) withAccessToken(token string) authInfo {
	a.AccessToken = token
	return a
}

func (a authInfo) withProfile(p *UserProfile) authInfo {
	a.Profile = p
	return a
}

func encodeAuthInfo(a authInfo) ([]byte, error) {
	return json.Marshal(a)
}

func decodeAuthInfo(data []byte) (authInfo, error) {
	var a authInfo
	if err := json.Unmarshal(data, &a); err != nil {
		return authInfo{}, fmt.Errorf("%w: %v", errCorruptAuthInfo, err)
	}
	return a, nil
}

func authInfoKey(appID string) string {
	return "stitch.auth_info." + appID
}

// readAuthInfo loads the persisted session for key. A missing or partial
// record yields an empty (logged out) state.
func readAuthInfo(ctx context.Context, store CredentialStore, key string) (authInfo, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return authInfo{}, err
	}
	if data == nil {
		return authInfo{}, nil
	}
	a, err := decodeAuthInfo(data)
	if err != nil {
		return authInfo{}, err
	}
	if !a.isConsistent() {
		return a.loggedOut(), nil
	}
	return a, nil
}

func writeAuthInfo(ctx context.Context, store CredentialStore, key string, a authInfo) error {
	data, err := encodeAuthInfo(a)
	if err != nil {
		return fmt.Errorf("failed to encode auth info: %w", err)
	}
	return store.Set(ctx, key, data)
}
