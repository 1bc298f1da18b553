package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/panyam/stitch"
)

func (e *env) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, string(data))
	return err
}

type credentialFlags struct {
	provider *string
	name     *string
	username *string
	password *string
	key      *string
	token    *string
	payload  *string
}

func newCredentialFlags(fs *flag.FlagSet) *credentialFlags {
	return &credentialFlags{
		provider: fs.String("provider", "anon", "anon, userpass, apikey, custom or function"),
		name:     fs.String("name", "", "Provider name, when it differs from the provider type"),
		username: fs.String("username", "", "Username (userpass)"),
		password: fs.String("password", "", "Password (userpass)"),
		key:      fs.String("key", "", "API key (apikey)"),
		token:    fs.String("token", "", "Signed JWT (custom)"),
		payload:  fs.String("payload", "{}", "JSON object (function)"),
	}
}

func (f *credentialFlags) credential() (stitch.Credential, error) {
	switch *f.provider {
	case "anon":
		return stitch.AnonymousCredential{Name: *f.name}, nil
	case "userpass":
		if *f.username == "" {
			return nil, errors.New("-username is required")
		}
		return stitch.UserPasswordCredential{Name: *f.name, Username: *f.username, Password: *f.password}, nil
	case "apikey":
		if *f.key == "" {
			return nil, errors.New("-key is required")
		}
		return stitch.UserAPIKeyCredential{Name: *f.name, Key: *f.key}, nil
	case "custom":
		if *f.token == "" {
			return nil, errors.New("-token is required")
		}
		return stitch.CustomCredential{Name: *f.name, Token: *f.token}, nil
	case "function":
		var payload map[string]any
		if err := json.Unmarshal([]byte(*f.payload), &payload); err != nil {
			return nil, errors.Wrap(err, "invalid -payload")
		}
		return stitch.FunctionCredential{Name: *f.name, Payload: payload}, nil
	}
	return nil, errors.Errorf("unknown provider: %s", *f.provider)
}

type userView struct {
	ID           string            `json:"id"`
	DeviceID     string            `json:"device_id,omitempty"`
	ProviderType string            `json:"provider_type"`
	ProviderName string            `json:"provider_name"`
	UserType     stitch.UserType   `json:"user_type,omitempty"`
	Identities   []stitch.Identity `json:"identities,omitempty"`
}

func viewOf(u *stitch.User) userView {
	return userView{
		ID:           u.ID,
		DeviceID:     u.DeviceID,
		ProviderType: string(u.LoggedInProviderType),
		ProviderName: u.LoggedInProviderName,
		UserType:     u.UserType(),
		Identities:   u.Identities(),
	}
}

func (e *env) login(ctx context.Context, args []string, link bool) error {
	name := "login"
	if link {
		name = "link"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	creds := newCredentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cred, err := creds.credential()
	if err != nil {
		return err
	}

	var u *stitch.User
	if link {
		u, err = e.client.Auth().LinkWithCredential(ctx, cred)
	} else {
		u, err = e.client.Auth().Login(ctx, cred)
	}
	if err != nil {
		return err
	}
	return e.print(viewOf(u))
}

func (e *env) whoami() error {
	if !e.client.Auth().IsLoggedIn() {
		return stitch.ErrMustAuthenticateFirst
	}
	return e.print(viewOf(e.client.Auth().CurrentUser()))
}

func (e *env) call(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fn := fs.String("name", "", "Function name")
	service := fs.String("service", "", "Service name")
	timeout := fs.Duration("timeout", 0, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fn == "" {
		return errors.New("-name is required")
	}

	var callArgs []any
	if fs.NArg() > 0 {
		if err := json.Unmarshal([]byte(fs.Arg(0)), &callArgs); err != nil {
			return errors.Wrap(err, "arguments must be a JSON array")
		}
	}

	var result any
	var err error
	if *service != "" {
		err = e.client.ServiceClient(*service).CallFunctionWithTimeout(ctx, *fn, callArgs, *timeout, &result)
	} else {
		err = e.client.CallFunctionWithTimeout(ctx, *fn, callArgs, *timeout, &result)
	}
	if err != nil {
		return err
	}
	return e.print(result)
}

func (e *env) refresh(ctx context.Context) error {
	if err := e.client.Auth().RefreshAccessToken(ctx); err != nil {
		return err
	}
	token, err := e.client.Auth().AccessToken()
	if err != nil {
		return err
	}
	out := map[string]any{"refreshed": true}
	if exp, err := stitch.TokenExpiry(token); err == nil {
		out["expires_in"] = time.Until(exp).Round(time.Second).String()
	}
	return e.print(out)
}

func (e *env) apikey(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("apikey: missing action")
	}
	keys := e.client.UserAPIKeyProvider()
	action, rest := args[0], args[1:]
	arg := func() (string, error) {
		if len(rest) == 0 {
			return "", errors.Errorf("apikey %s: missing argument", action)
		}
		return rest[0], nil
	}

	switch action {
	case "list":
		list, err := keys.FetchAPIKeys(ctx)
		if err != nil {
			return err
		}
		return e.print(list)
	case "create", "get", "delete", "enable", "disable":
		v, err := arg()
		if err != nil {
			return err
		}
		switch action {
		case "create":
			key, err := keys.CreateAPIKey(ctx, v)
			if err != nil {
				return err
			}
			return e.print(key)
		case "get":
			key, err := keys.FetchAPIKey(ctx, v)
			if err != nil {
				return err
			}
			return e.print(key)
		case "delete":
			return keys.DeleteAPIKey(ctx, v)
		case "enable":
			return keys.EnableAPIKey(ctx, v)
		default:
			return keys.DisableAPIKey(ctx, v)
		}
	}
	return errors.Errorf("apikey: unknown action %s", action)
}

func (e *env) userpass(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("userpass: missing action")
	}
	action := args[0]
	fs := flag.NewFlagSet("userpass "+action, flag.ContinueOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password")
	token := fs.String("token", "", "Token from the email")
	tokenID := fs.String("token-id", "", "Token id from the email")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	p := e.client.UserPasswordProvider()
	switch action {
	case "register":
		return p.RegisterWithEmail(ctx, *email, *password)
	case "confirm":
		return p.ConfirmUser(ctx, *token, *tokenID)
	case "resend":
		return p.ResendConfirmationEmail(ctx, *email)
	case "send-reset":
		return p.SendResetPasswordEmail(ctx, *email)
	case "reset":
		return p.ResetPassword(ctx, *token, *tokenID, *password)
	}
	return errors.Errorf("userpass: unknown action %s", action)
}
