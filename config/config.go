// Package config loads the settings of the stitch command line client from a
// YAML file and STITCH_* environment variables.
package config

import (
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/panyam/stitch"
)

const envPrefix = "STITCH_"

// Storage backends
const (
	StorageFS        = "fs"
	StorageMemory    = "memory"
	StorageDatastore = "datastore"
)

type Config struct {
	App struct {
		ID      string `koanf:"id"`
		BaseURL string `koanf:"base_url"`
		Name    string `koanf:"name"`
		Version string `koanf:"version"`
	} `koanf:"app"`

	Storage Storage `koanf:"storage"`

	Request struct {
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"request"`

	Refresh struct {
		Disabled  bool          `koanf:"disabled"`
		Interval  time.Duration `koanf:"interval"`
		Threshold time.Duration `koanf:"threshold"`
	} `koanf:"refresh"`

	Log Log `koanf:"log"`
}

// Storage selects where the session is persisted.
type Storage struct {
	// Backend is one of "fs", "memory" or "datastore".
	Backend string `koanf:"backend"`

	// Path of the credentials file for the fs backend. Empty means the
	// per-user config directory.
	Path string `koanf:"path"`

	// Passphrase, when set, encrypts stored sessions.
	Passphrase string `koanf:"passphrase"`

	// ProjectID and Namespace configure the datastore backend.
	ProjectID string `koanf:"project_id"`
	Namespace string `koanf:"namespace"`
}

type Log struct {
	Pretty bool   `koanf:"pretty"`
	Level  string `koanf:"level"`
}

// Load reads path (if non-empty) and then applies STITCH_* environment
// overrides, e.g. STITCH_APP_ID or STITCH_STORAGE_PASSPHRASE.
func Load(path string) (*Config, error) {
	cfg := new(Config)
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config %s failed", path)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeys[strings.ToLower(strings.TrimPrefix(key, envPrefix))], value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.BaseURL == "" {
		c.App.BaseURL = stitch.DefaultBaseURL
	}
	if c.App.Name == "" {
		c.App.Name = "stitch-cli"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFS
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageFS, StorageMemory:
	case StorageDatastore:
		if c.Storage.ProjectID == "" {
			return errors.New("storage.project_id is required for the datastore backend")
		}
	default:
		return errors.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// AppClientConfiguration converts the loaded settings for stitch.NewAppClient.
func (c *Config) AppClientConfiguration(store stitch.CredentialStore, logger *slog.Logger) stitch.AppClientConfiguration {
	return stitch.AppClientConfiguration{
		BaseURL:          c.App.BaseURL,
		LocalAppName:     c.App.Name,
		LocalAppVersion:  c.App.Version,
		Storage:          store,
		RequestTimeout:   c.Request.Timeout,
		RefreshInterval:  c.Refresh.Interval,
		RefreshThreshold: c.Refresh.Threshold,
		DisableRefresher: c.Refresh.Disabled,
		Logger:           logger,
	}
}

// envKeys maps the lower-cased name of a STITCH_* variable, without the prefix,
// to the setting it overrides: "app_base_url" to "app.base_url".
var envKeys = settingKeys(reflect.TypeOf(Config{}), "")

func settingKeys(t reflect.Type, prefix string) map[string]string {
	keys := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("koanf")
		if name == "" {
			continue
		}
		path := prefix + name
		if f.Type.Kind() == reflect.Struct {
			for env, p := range settingKeys(f.Type, path+".") {
				keys[env] = p
			}
			continue
		}
		keys[strings.ReplaceAll(path, ".", "_")] = path
	}
	return keys
}
