package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"github.com/panyam/stitch"
	"github.com/panyam/stitch/config"
)

// Supported subcommands:
// - login:    log in with a credential
// - link:     link a credential to the current user
// - whoami:   print the current user
// - call:     call a function
// - refresh:  refresh the access token
// - logout:   log out
// - apikey:   manage the current user's API keys
// - userpass: register and recover local-userpass accounts

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: stitch [-config file] [-app id] [-url base] <command> [flags]

Commands:
  login     -provider anon|userpass|apikey|custom|function [credential flags]
  link      -provider userpass|apikey|custom [credential flags]
  whoami
  call      -name fn [-service svc] [-timeout d] [json args array]
  refresh
  logout
  apikey    create NAME | list | get ID | delete ID | enable ID | disable ID
  userpass  register|confirm|resend|send-reset|reset [flags]`)
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	client *stitch.AppClient
	out    io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := flag.NewFlagSet("stitch", flag.ContinueOnError)
	root.SetOutput(stderr)
	configPath := root.String("config", os.Getenv("STITCH_CONFIG"), "Path to the YAML config file")
	appID := root.String("app", "", "Stitch app id (overrides config)")
	baseURL := root.String("url", "", "Stitch server URL (overrides config)")
	root.Usage = func() { printUsage(stderr) }
	if err := root.Parse(args); err != nil {
		return err
	}
	if root.NArg() == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *appID != "" {
		cfg.App.ID = *appID
	}
	if *baseURL != "" {
		cfg.App.BaseURL = *baseURL
	}
	if cfg.App.ID == "" {
		return errors.New("app id is required (-app, app.id or STITCH_APP_ID)")
	}

	logger, err := config.NewLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Commands are short lived; the background refresher has nothing to do.
	acc := cfg.AppClientConfiguration(store, logger)
	acc.DisableRefresher = true
	client, err := stitch.NewAppClient(ctx, cfg.App.ID, acc)
	if err != nil {
		return errors.Wrap(err, "create app client")
	}
	defer client.Close()

	e := &env{cfg: cfg, client: client, out: stdout}
	cmd, rest := root.Arg(0), root.Args()[1:]
	switch cmd {
	case "login":
		return e.login(ctx, rest, false)
	case "link":
		return e.login(ctx, rest, true)
	case "whoami":
		return e.whoami()
	case "call":
		return e.call(ctx, rest)
	case "refresh":
		return e.refresh(ctx)
	case "logout":
		return e.client.Auth().Logout(ctx)
	case "apikey":
		return e.apikey(ctx, rest)
	case "userpass":
		return e.userpass(ctx, rest)
	default:
		printUsage(stderr)
		return errors.Errorf("unknown command: %s", cmd)
	}
}
