// Package config loads and validates the proxy configuration file.
//
// The configuration is a single JSON-with-comments document. Before parsing,
// the loader checks that the file's permission bits grant access to the owner
// only; a group- or world-readable credential file is a startup failure, not
// a warning.
//
// The loaded Config is immutable for the lifetime of the process. A restart
// is required to pick up changes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/delight-co/finest-grained-auth-proxy/internal/errors"
)

const (
	// DefaultPort is the bind port when the config omits one.
	DefaultPort = 8766

	// DefaultCLITimeout bounds subprocess execution.
	DefaultCLITimeout = 60 * time.Second

	// DefaultHTTPTimeout bounds outbound HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second
)

// Config is the parsed, validated proxy configuration.
type Config struct {
	// Port is the TCP port the proxy binds on localhost.
	Port int

	// CLITimeout bounds each subprocess run.
	CLITimeout time.Duration

	// HTTPTimeout bounds each outbound HTTP request.
	HTTPTimeout time.Duration

	// HealthSweep is an optional cron expression; when set, a background
	// job probes every configured credential on that schedule and logs
	// the (masked) results.
	HealthSweep string

	// Plugins maps plugin name to its credential configuration. The map
	// carries no order; the registry is built in the fixed built-in order.
	Plugins map[string]PluginConfig
}

// PluginConfig is the per-plugin slice of the configuration.
type PluginConfig struct {
	// Credentials is the ordered credential list. Order is significant:
	// selection walks it front to back and the first match wins.
	Credentials []CredentialConfig `json:"credentials"`
}

// CredentialConfig is one credential entry. Which secret fields are required
// depends on the plugin: the code-forge plugin needs Secret, the
// productivity-suite plugin needs the refresh-token triple.
type CredentialConfig struct {
	// Secret is an opaque token (e.g. a forge personal access token).
	Secret string `json:"secret,omitempty"`

	// ClientID, ClientSecret and RefreshToken form the OAuth refresh
	// triple used by the productivity-suite plugin.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`

	// Account is an optional display label for this credential.
	Account string `json:"account,omitempty"`

	// Resources is the ordered, non-empty list of resource patterns this
	// credential is scoped to.
	Resources []string `json:"resources"`
}

// rawConfig is the wire shape of the config document.
type rawConfig struct {
	Port        int                     `json:"port"`
	Timeouts    *rawTimeouts            `json:"timeouts"`
	HealthSweep string                  `json:"health_sweep"`
	Plugins     map[string]PluginConfig `json:"plugins"`
}

type rawTimeouts struct {
	CLI  int `json:"cli"`
	HTTP int `json:"http"`
}

// PatternValidator checks one resource pattern; wired to the plugin
// package's matcher so config does not depend on it.
type PatternValidator func(pattern string) bool

// Load reads, permission-checks, parses and validates the config file.
//
// knownPlugins is the set of built-in plugin names; any other key under
// "plugins" is a CONFIG_UNKNOWN_PLUGIN error. validPattern checks each
// resource pattern syntactically.
func Load(path string, knownPlugins []string, validPattern PatternValidator) (*Config, error) {
	if err := checkPermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigMalformed(err)
	}

	// The file is JSON-with-comments; standardize to plain JSON first.
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.ConfigMalformed(fmt.Errorf("parse %s: %w", path, err))
	}

	var raw rawConfig
	if err := json.Unmarshal(std, &raw); err != nil {
		return nil, errors.ConfigMalformed(fmt.Errorf("parse %s: %w", path, err))
	}

	cfg := &Config{
		Port:        DefaultPort,
		CLITimeout:  DefaultCLITimeout,
		HTTPTimeout: DefaultHTTPTimeout,
		HealthSweep: raw.HealthSweep,
		Plugins:     raw.Plugins,
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}

	if raw.Port != 0 {
		if raw.Port < 1 || raw.Port > 65535 {
			return nil, errors.ConfigMalformed(fmt.Errorf("port %d out of range", raw.Port))
		}
		cfg.Port = raw.Port
	}

	if raw.Timeouts != nil {
		if raw.Timeouts.CLI != 0 {
			if raw.Timeouts.CLI < 0 {
				return nil, errors.ConfigMalformed(fmt.Errorf("timeouts.cli must be positive, got %d", raw.Timeouts.CLI))
			}
			cfg.CLITimeout = time.Duration(raw.Timeouts.CLI) * time.Second
		}
		if raw.Timeouts.HTTP != 0 {
			if raw.Timeouts.HTTP < 0 {
				return nil, errors.ConfigMalformed(fmt.Errorf("timeouts.http must be positive, got %d", raw.Timeouts.HTTP))
			}
			cfg.HTTPTimeout = time.Duration(raw.Timeouts.HTTP) * time.Second
		}
	}

	known := make(map[string]bool, len(knownPlugins))
	for _, name := range knownPlugins {
		known[name] = true
	}
	for name, pc := range cfg.Plugins {
		if !known[name] {
			return nil, errors.ConfigUnknownPlugin(name)
		}
		for i, cred := range pc.Credentials {
			if len(cred.Resources) == 0 {
				return nil, errors.ConfigMalformed(
					fmt.Errorf("plugin %q credential %d has no resources", name, i))
			}
			for _, pat := range cred.Resources {
				if !validPattern(pat) {
					return nil, errors.ConfigMalformed(
						fmt.Errorf("plugin %q credential %d: invalid resource pattern %q", name, i, pat))
				}
			}
		}
	}

	return cfg, nil
}

// SecretValues collects every secret value the configuration carries, in no
// particular order. The masker is built from this set once at load time.
func SecretValues(cfg *Config) []string {
	var out []string
	for _, pc := range cfg.Plugins {
		for _, cred := range pc.Credentials {
			for _, v := range []string{cred.Secret, cred.ClientSecret, cred.RefreshToken} {
				if v != "" {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// checkPermissions fails unless the file is readable by its owner only.
func checkPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.ConfigMalformed(err)
	}
	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		return errors.ConfigPermissions(path, fmt.Sprintf("%04o", mode))
	}
	return nil
}
