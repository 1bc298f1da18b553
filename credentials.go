package stitch

import (
	"golang.org/x/oauth2"
)

// ProviderType identifies the kind of authentication provider a credential targets.
type ProviderType string

const (
	ProviderTypeAnonymous    ProviderType = "anon-user"
	ProviderTypeUserPassword ProviderType = "local-userpass"
	ProviderTypeCustom       ProviderType = "custom-token"
	ProviderTypeFacebook     ProviderType = "oauth2-facebook"
	ProviderTypeGoogle       ProviderType = "oauth2-google"
	ProviderTypeApple        ProviderType = "oauth2-apple"
	ProviderTypeServerAPIKey ProviderType = "api-key"
	ProviderTypeUserAPIKey   ProviderType = "api-key"
	ProviderTypeFunction     ProviderType = "custom-function"
)

// Credential is one of the concrete credential types in this file.
// The set is closed; encoding dispatches on the concrete type.
type Credential interface {
	ProviderType() ProviderType
	ProviderName() string
	credential()
}

// AnonymousCredential logs in as an anonymous user.
type AnonymousCredential struct {
	Name string
}

// UserPasswordCredential logs in with an email/username and password.
type UserPasswordCredential struct {
	Name     string
	Username string
	Password string
}

// CustomCredential logs in with a JWT issued by a third-party authentication system.
type CustomCredential struct {
	Name  string
	Token string
}

// FacebookCredential logs in with a Facebook access token.
type FacebookCredential struct {
	Name        string
	AccessToken string
}

// GoogleCredential logs in with a Google server auth code.
type GoogleCredential struct {
	Name     string
	AuthCode string
}

// AppleCredential logs in with a Sign in with Apple identity token.
type AppleCredential struct {
	Name    string
	IDToken string
}

// ServerAPIKeyCredential logs in with a server API key.
type ServerAPIKeyCredential struct {
	Name string
	Key  string
}

// UserAPIKeyCredential logs in with a user API key.
type UserAPIKeyCredential struct {
	Name string
	Key  string
}

// FunctionCredential logs in through a custom authentication function. Payload is
// sent to the server as-is.
type FunctionCredential struct {
	Name    string
	Payload map[string]any
}

func (AnonymousCredential) credential()    {}
func (UserPasswordCredential) credential() {}
func (CustomCredential) credential()       {}
func (FacebookCredential) credential()     {}
func (GoogleCredential) credential()       {}
func (AppleCredential) credential()        {}
func (ServerAPIKeyCredential) credential() {}
func (UserAPIKeyCredential) credential()   {}
func (FunctionCredential) credential()     {}

func (AnonymousCredential) ProviderType() ProviderType    { return ProviderTypeAnonymous }
func (UserPasswordCredential) ProviderType() ProviderType { return ProviderTypeUserPassword }
func (CustomCredential) ProviderType() ProviderType       { return ProviderTypeCustom }
func (FacebookCredential) ProviderType() ProviderType     { return ProviderTypeFacebook }
func (GoogleCredential) ProviderType() ProviderType       { return ProviderTypeGoogle }
func (AppleCredential) ProviderType() ProviderType        { return ProviderTypeApple }
func (ServerAPIKeyCredential) ProviderType() ProviderType { return ProviderTypeServerAPIKey }
func (UserAPIKeyCredential) ProviderType() ProviderType   { return ProviderTypeUserAPIKey }
func (FunctionCredential) ProviderType() ProviderType     { return ProviderTypeFunction }

func (c AnonymousCredential) ProviderName() string    { return nameOr(c.Name, ProviderTypeAnonymous) }
func (c UserPasswordCredential) ProviderName() string { return nameOr(c.Name, ProviderTypeUserPassword) }
func (c CustomCredential) ProviderName() string       { return nameOr(c.Name, ProviderTypeCustom) }
func (c FacebookCredential) ProviderName() string     { return nameOr(c.Name, ProviderTypeFacebook) }
func (c GoogleCredential) ProviderName() string       { return nameOr(c.Name, ProviderTypeGoogle) }
func (c AppleCredential) ProviderName() string        { return nameOr(c.Name, ProviderTypeApple) }
func (c ServerAPIKeyCredential) ProviderName() string { return nameOr(c.Name, ProviderTypeServerAPIKey) }
func (c UserAPIKeyCredential) ProviderName() string   { return nameOr(c.Name, ProviderTypeUserAPIKey) }
func (c FunctionCredential) ProviderName() string     { return nameOr(c.Name, ProviderTypeFunction) }

func nameOr(name string, t ProviderType) string {
	if name != "" {
		return name
	}
	return string(t)
}

// NewGoogleCredentialFromToken builds a GoogleCredential from the result of an
// oauth2 exchange. Google returns the server auth code as the "code" extra when
// offline access was requested; otherwise the access token is used.
func NewGoogleCredentialFromToken(tok *oauth2.Token) GoogleCredential {
	if code, ok := tok.Extra("code").(string); ok && code != "" {
		return GoogleCredential{AuthCode: code}
	}
	return GoogleCredential{AuthCode: tok.AccessToken}
}

// NewFacebookCredentialFromToken builds a FacebookCredential from an oauth2 token.
func NewFacebookCredentialFromToken(tok *oauth2.Token) FacebookCredential {
	return FacebookCredential{AccessToken: tok.AccessToken}
}

// credentialMaterial returns the provider-specific body sent to the login route.
func credentialMaterial(c Credential) map[string]any {
	switch c := c.(type) {
	case AnonymousCredential:
		return map[string]any{}
	case UserPasswordCredential:
		return map[string]any{"username": c.Username, "password": c.Password}
	case CustomCredential:
		return map[string]any{"token": c.Token}
	case FacebookCredential:
		return map[string]any{"accessToken": c.AccessToken}
	case GoogleCredential:
		return map[string]any{"authCode": c.AuthCode}
	case AppleCredential:
		return map[string]any{"id_token": c.IDToken}
	case ServerAPIKeyCredential:
		return map[string]any{"key": c.Key}
	case UserAPIKeyCredential:
		return map[string]any{"key": c.Key}
	case FunctionCredential:
		out := make(map[string]any, len(c.Payload))
		for k, v := range c.Payload {
			out[k] = v
		}
		return out
	}
	return map[string]any{}
}

// reusesExistingSession reports whether logging in with c while already logged in
// through the same provider may return the existing session.
func reusesExistingSession(c Credential) bool {
	switch c.(type) {
	case AnonymousCredential:
		return true
	}
	return false
}
