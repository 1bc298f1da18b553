package stitch

import "fmt"

const (
	apiBasePath = "/api/client/v2.0"
	authPath    = apiBasePath + "/auth"

	sessionPath = authPath + "/session"
	profilePath = authPath + "/profile"
	apiKeysPath = authPath + "/api_keys"
)

func appPath(appID string) string {
	return fmt.Sprintf("%s/app/%s", apiBasePath, appID)
}

func loginPath(appID, providerName string) string {
	return fmt.Sprintf("%s/auth/providers/%s/login", appPath(appID), providerName)
}

func linkPath(appID, providerName string) string {
	return loginPath(appID, providerName) + "?link=true"
}

func providerPath(appID, providerName string) string {
	return fmt.Sprintf("%s/auth/providers/%s", appPath(appID), providerName)
}

func functionCallPath(appID string) string {
	return appPath(appID) + "/functions/call"
}

func apiKeyPath(id string) string {
	return apiKeysPath + "/" + id
}
