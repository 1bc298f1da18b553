package stitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestCredential_ProviderNames(t *testing.T) {
	tests := []struct {
		cred     Credential
		wantType ProviderType
		wantName string
	}{
		{AnonymousCredential{}, ProviderTypeAnonymous, "anon-user"},
		{UserPasswordCredential{Username: "u", Password: "p"}, ProviderTypeUserPassword, "local-userpass"},
		{CustomCredential{Token: "jwt"}, ProviderTypeCustom, "custom-token"},
		{FacebookCredential{AccessToken: "fb"}, ProviderTypeFacebook, "oauth2-facebook"},
		{GoogleCredential{AuthCode: "g"}, ProviderTypeGoogle, "oauth2-google"},
		{AppleCredential{IDToken: "a"}, ProviderTypeApple, "oauth2-apple"},
		{ServerAPIKeyCredential{Key: "k"}, ProviderTypeServerAPIKey, "api-key"},
		{UserAPIKeyCredential{Key: "k"}, ProviderTypeUserAPIKey, "api-key"},
		{FunctionCredential{Payload: map[string]any{"x": 1}}, ProviderTypeFunction, "custom-function"},
		{CustomCredential{Name: "my-jwt", Token: "jwt"}, ProviderTypeCustom, "my-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.cred.ProviderType())
			assert.Equal(t, tt.wantName, tt.cred.ProviderName())
		})
	}
}

func TestCredential_Material(t *testing.T) {
	assert.Equal(t, map[string]any{}, credentialMaterial(AnonymousCredential{}))
	assert.Equal(t, map[string]any{"username": "u", "password": "p"},
		credentialMaterial(UserPasswordCredential{Username: "u", Password: "p"}))
	assert.Equal(t, map[string]any{"token": "jwt"}, credentialMaterial(CustomCredential{Token: "jwt"}))
	assert.Equal(t, map[string]any{"accessToken": "fb"}, credentialMaterial(FacebookCredential{AccessToken: "fb"}))
	assert.Equal(t, map[string]any{"authCode": "g"}, credentialMaterial(GoogleCredential{AuthCode: "g"}))
	assert.Equal(t, map[string]any{"id_token": "a"}, credentialMaterial(AppleCredential{IDToken: "a"}))
	assert.Equal(t, map[string]any{"key": "k"}, credentialMaterial(UserAPIKeyCredential{Key: "k"}))

	payload := map[string]any{"username": "fn-user"}
	material := credentialMaterial(FunctionCredential{Payload: payload})
	material["options"] = "added"
	_, leaked := payload["options"]
	assert.False(t, leaked)
}

func TestCredential_SessionReuse(t *testing.T) {
	assert.True(t, reusesExistingSession(AnonymousCredential{}))
	assert.False(t, reusesExistingSession(UserPasswordCredential{}))
	assert.False(t, reusesExistingSession(FunctionCredential{}))
	assert.False(t, reusesExistingSession(UserAPIKeyCredential{}))
}

func TestCredential_FromOAuth2Token(t *testing.T) {
	plain := &oauth2.Token{AccessToken: "access"}
	assert.Equal(t, GoogleCredential{AuthCode: "access"}, NewGoogleCredentialFromToken(plain))
	assert.Equal(t, FacebookCredential{AccessToken: "access"}, NewFacebookCredentialFromToken(plain))

	withCode := plain.WithExtra(map[string]any{"code": "server-auth-code"})
	assert.Equal(t, GoogleCredential{AuthCode: "server-auth-code"}, NewGoogleCredentialFromToken(withCode))
}
