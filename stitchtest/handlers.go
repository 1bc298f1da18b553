package stitchtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var providerTypes = map[string]string{
	"anon-user":       "anon-user",
	"local-userpass":  "local-userpass",
	"custom-token":    "custom-token",
	"oauth2-facebook": "oauth2-facebook",
	"oauth2-google":   "oauth2-google",
	"oauth2-apple":    "oauth2-apple",
	"api-key":         "api-key",
	"custom-function": "custom-function",
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, err
}

func decodeBody(r *http.Request, out any) error {
	data, err := readBody(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends a Stitch error document
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"error_code": code,
	})
}

func writeInvalidSession(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "InvalidSession", "invalid session")
}

// identityFor resolves the identity a login body asserts for providerType.
func (s *Server) identityFor(providerType string, body map[string]any) (id, email string, err error) {
	str := func(k string) string {
		v, _ := body[k].(string)
		return v
	}
	switch providerType {
	case "anon-user":
		return uuid.NewString(), "", nil
	case "local-userpass":
		username, password := str("username"), str("password")
		if pw, ok := s.passwords[username]; !ok || pw != password {
			return "", "", errors.New("invalid username/password")
		}
		return username, username, nil
	case "api-key":
		for _, k := range s.apiKeys {
			if k.Key == str("key") && !k.Disabled {
				return "apikey:" + k.ID, "", nil
			}
		}
		return "", "", errors.New("invalid API key")
	case "custom-token":
		token := str("token")
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
			if sub, _ := claims.GetSubject(); sub != "" {
				return sub, "", nil
			}
		}
		if token == "" {
			return "", "", errors.New("missing token")
		}
		return token, "", nil
	case "oauth2-facebook":
		return nonEmpty(str("accessToken"), "accessToken")
	case "oauth2-google":
		return nonEmpty(str("authCode"), "authCode")
	case "oauth2-apple":
		return nonEmpty(str("id_token"), "id_token")
	case "custom-function":
		delete(body, "options")
		data, _ := json.Marshal(body)
		return string(data), "", nil
	}
	return "", "", fmt.Errorf("unsupported provider %s", providerType)
}

func nonEmpty(v, field string) (string, string, error) {
	if v == "" {
		return "", "", fmt.Errorf("missing %s", field)
	}
	return v, "", nil
}

func deviceIDFrom(body map[string]any) string {
	opts, _ := body["options"].(map[string]any)
	device, _ := opts["device"].(map[string]any)
	id, _ := device["deviceId"].(string)
	return id
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.loginDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	providerType, ok := providerTypes[mux.Vars(r)["provider"]]
	if !ok {
		writeError(w, http.StatusNotFound, "AuthProviderNotFound", "authentication provider not found")
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	identityID, email, err := s.identityFor(providerType, body)
	if err != nil {
		code := "AuthError"
		if providerType == "local-userpass" {
			code = "InvalidPassword"
		}
		writeError(w, http.StatusUnauthorized, code, err.Error())
		return
	}
	var u *user
	if providerType == "api-key" {
		// User API keys log in as the key's owner.
		if k := s.apiKeys[strings.TrimPrefix(identityID, "apikey:")]; k != nil {
			u = s.users[k.userID]
		}
	}
	if u == nil {
		u = s.userForIdentityLocked(providerType, identityID, email)
	}

	access, err := s.accessTokenLocked(u.id, s.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalServerError", err.Error())
		return
	}
	refresh := uuid.NewString()
	s.refreshTokens[refresh] = u.id

	deviceID := deviceIDFrom(body)
	if deviceID == "" {
		deviceID = strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":       u.id,
		"access_token":  access,
		"refresh_token": refresh,
		"device_id":     deviceID,
	})
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	providerType, ok := providerTypes[mux.Vars(r)["provider"]]
	if !ok {
		writeError(w, http.StatusNotFound, "AuthProviderNotFound", "authentication provider not found")
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.validateAccessLocked(r)
	if !ok {
		writeInvalidSession(w)
		return
	}
	identityID, email, err := s.identityFor(providerType, body)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AuthError", err.Error())
		return
	}
	key := providerType + ":" + identityID
	if owner, exists := s.identities[key]; exists && owner != u.id {
		writeError(w, http.StatusConflict, "AccountNameInUse", "identity already linked to another user")
		return
	}
	if _, exists := s.identities[key]; !exists {
		s.identities[key] = u.id
		u.identities = append(u.identities, identity{ID: identityID, ProviderType: providerType})
		if email != "" {
			u.email = email
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": u.id})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.validateAccessLocked(r)
	if !ok {
		writeInvalidSession(w)
		return
	}
	data := map[string]string{}
	if u.email != "" {
		data["email"] = u.email
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    u.id,
		"type":       u.userType,
		"identities": append([]identity(nil), u.identities...),
		"data":       data,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, _, ok := s.validateRefreshLocked(r)
	if !ok {
		writeInvalidSession(w)
		return
	}
	access, err := s.accessTokenLocked(u.id, s.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalServerError", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"access_token": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFunctionCall(w http.ResponseWriter, r *http.Request) {
	var call struct {
		Name      string `json:"name"`
		Service   string `json:"service"`
		Arguments []any  `json:"arguments"`
	}
	if err := decodeBody(r, &call); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}

	s.mu.Lock()
	if _, ok := s.validateAccessLocked(r); !ok {
		s.mu.Unlock()
		writeInvalidSession(w)
		return
	}
	key := call.Name
	if call.Service != "" {
		key = call.Service + "/" + call.Name
	}
	fn, ok := s.functions[key]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "FunctionNotFound", fmt.Sprintf("function not found: '%s'", key))
		return
	}
	result, err := fn(call.Arguments)
	if err != nil {
		writeError(w, http.StatusBadRequest, "FunctionExecutionError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func echoFunction(args []any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func sumFunction(args []any) (any, error) {
	var total float64
	for _, a := range args {
		n, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("argument %v is not a number", a)
		}
		total += n
	}
	return total, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "email and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.passwords[body.Email]; exists {
		writeError(w, http.StatusConflict, "AccountNameInUse", "name already in use")
		return
	}
	p := &pendingToken{email: body.Email, token: uuid.NewString(), tokenID: uuid.NewString(), password: body.Password}
	s.pending[p.tokenID] = p
	writeJSON(w, http.StatusCreated, map[string]any{})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token   string `json:"token"`
		TokenID string `json:"tokenId"`
	}
	decodeBody(r, &body)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[body.TokenID]
	if !ok || p.token != body.Token {
		writeError(w, http.StatusBadRequest, "UserNotFound", "invalid confirmation token")
		return
	}
	delete(s.pending, body.TokenID)
	s.passwords[p.email] = p.password
	s.userForIdentityLocked("local-userpass", p.email, p.email)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleResendConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	decodeBody(r, &body)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		if p.email == body.Email {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	if _, ok := s.passwords[body.Email]; ok {
		writeError(w, http.StatusBadRequest, "UserAlreadyConfirmed", "already confirmed")
		return
	}
	writeError(w, http.StatusNotFound, "UserNotFound", "user not found")
}

func (s *Server) handleSendReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	decodeBody(r, &body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.passwords[body.Email]; !ok {
		writeError(w, http.StatusNotFound, "UserNotFound", "user not found")
		return
	}
	p := &pendingToken{email: body.Email, token: uuid.NewString(), tokenID: uuid.NewString()}
	s.resets[p.tokenID] = p
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		TokenID  string `json:"tokenId"`
		Password string `json:"password"`
	}
	decodeBody(r, &body)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.resets[body.TokenID]
	if !ok || p.token != body.Token {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid reset token")
		return
	}
	delete(s.resets, body.TokenID)
	s.passwords[p.email] = body.Password
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleAPIKeys(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, _, ok := s.validateRefreshLocked(r)
	if !ok {
		writeInvalidSession(w)
		return
	}

	if r.Method == http.MethodGet {
		keys := []apiKey{}
		for _, k := range s.apiKeys {
			if k.userID == u.id {
				kk := *k
				kk.Key = ""
				keys = append(keys, kk)
			}
		}
		writeJSON(w, http.StatusOK, keys)
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "InvalidParameter", "name is required")
		return
	}
	k := &apiKey{
		ID:     strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
		Key:    uuid.NewString(),
		Name:   body.Name,
		userID: u.id,
	}
	s.apiKeys[k.ID] = k
	writeJSON(w, http.StatusCreated, k)
}

func (s *Server) apiKeyForRequestLocked(w http.ResponseWriter, r *http.Request) *apiKey {
	u, _, ok := s.validateRefreshLocked(r)
	if !ok {
		writeInvalidSession(w)
		return nil
	}
	k, ok := s.apiKeys[mux.Vars(r)["id"]]
	if !ok || k.userID != u.id {
		writeError(w, http.StatusNotFound, "APIKeyNotFound", "api key not found")
		return nil
	}
	return k
}

func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.apiKeyForRequestLocked(w, r)
	if k == nil {
		return
	}
	if r.Method == http.MethodDelete {
		delete(s.apiKeys, k.ID)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	kk := *k
	kk.Key = ""
	writeJSON(w, http.StatusOK, kk)
}

func (s *Server) handleAPIKeyToggle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.apiKeyForRequestLocked(w, r)
	if k == nil {
		return
	}
	k.Disabled = mux.Vars(r)["action"] == "disable"
	w.WriteHeader(http.StatusNoContent)
}
