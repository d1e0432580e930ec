// Package config loads the process configuration: a YAML file describing
// one or more OIDC-protected virtual hosts, overridable by flags. The
// decision core itself has no notion of this — it only ever sees an
// already-constructed oidc.OIDCConfig.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/prismon/authservice/internal/oidc"
)

// EndpointConfig is the YAML-friendly mirror of oidc.Endpoint.
type EndpointConfig struct {
	Scheme   string `yaml:"scheme"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"`
}

func (e EndpointConfig) toEndpoint() oidc.Endpoint {
	return oidc.Endpoint{Scheme: e.Scheme, Hostname: e.Hostname, Port: e.Port, Path: e.Path}
}

// HeaderConfigYAML mirrors oidc.HeaderConfig.
type HeaderConfigYAML struct {
	Name     string `yaml:"name"`
	Preamble string `yaml:"preamble"`
}

func (h HeaderConfigYAML) toHeaderConfig() oidc.HeaderConfig {
	return oidc.HeaderConfig{HeaderName: h.Name, Preamble: h.Preamble}
}

// LogoutConfigYAML mirrors oidc.LogoutConfig.
type LogoutConfigYAML struct {
	Path          string `yaml:"path"`
	RedirectToURI string `yaml:"redirect_to_uri"`
}

// VirtualHostConfig is one entry of the top-level virtual_hosts list: the
// host header the ext_authz shell routes on, plus the OIDCConfig it maps
// to.
type VirtualHostConfig struct {
	Host string `yaml:"host"`

	Authorization EndpointConfig `yaml:"authorization_endpoint"`
	Token         EndpointConfig `yaml:"token_endpoint"`
	JWKSURI       string         `yaml:"jwks_uri"`
	Callback      EndpointConfig `yaml:"callback"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	Scopes []string `yaml:"scopes"`

	CookieNamePrefix string `yaml:"cookie_name_prefix"`

	IDTokenHeader     HeaderConfigYAML  `yaml:"id_token_header"`
	AccessTokenHeader *HeaderConfigYAML `yaml:"access_token_header"`

	LandingPage string            `yaml:"landing_page"`
	Logout      *LogoutConfigYAML `yaml:"logout"`

	TimeoutSeconds int64 `yaml:"timeout_seconds"`
}

// ToOIDCConfig builds the oidc.OIDCConfig this entry describes.
func (v VirtualHostConfig) ToOIDCConfig() oidc.OIDCConfig {
	cfg := oidc.OIDCConfig{
		Authorization:    v.Authorization.toEndpoint(),
		Token:            v.Token.toEndpoint(),
		JWKSURI:          v.JWKSURI,
		Callback:         v.Callback.toEndpoint(),
		ClientID:         v.ClientID,
		ClientSecret:     v.ClientSecret,
		Scopes:           v.Scopes,
		CookieNamePrefix: v.CookieNamePrefix,
		IDToken:          v.IDTokenHeader.toHeaderConfig(),
		LandingPage:      v.LandingPage,
		Timeout:          v.TimeoutSeconds,
	}
	if v.AccessTokenHeader != nil {
		h := v.AccessTokenHeader.toHeaderConfig()
		cfg.AccessToken = &h
	}
	if v.Logout != nil {
		cfg.Logout = &oidc.LogoutConfig{Path: v.Logout.Path, RedirectToURI: v.Logout.RedirectToURI}
	}
	return cfg
}

// SessionStoreConfig selects and configures the SessionStore backend.
type SessionStoreConfig struct {
	// Kind is one of "memory", "redis", "valkey". Defaults to "memory".
	Kind     string   `yaml:"kind"`
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	MaxTTL   int64    `yaml:"max_ttl_seconds"`
}

// VerifierConfig selects the id_token signature verification backend.
type VerifierConfig struct {
	// Kind is one of "go-oidc" (default) or "keyfunc".
	Kind            string `yaml:"kind"`
	Issuer          string `yaml:"issuer"`
	SkipIssuerCheck bool   `yaml:"skip_issuer_check"`
}

// Config is the top-level process configuration.
type Config struct {
	ListenAddress  string `yaml:"listen_address"`
	MetricsAddress string `yaml:"metrics_address"`
	LogLevel       string `yaml:"log_level"`
	LogJSON        bool   `yaml:"log_json"`

	SessionStore SessionStoreConfig `yaml:"session_store"`
	Verifier     VerifierConfig     `yaml:"verifier"`

	// SecretsFile names a comma-separated-secrets file (FileSecretSource);
	// mutually exclusive with Secrets. Newest secret first.
	SecretsFile string `yaml:"secrets_file"`
	// Secrets, when SecretsFile is unset, is used to build a
	// StaticSecretSource directly from the config document.
	Secrets []string `yaml:"secrets"`

	VirtualHosts []VirtualHostConfig `yaml:"virtual_hosts"`

	// ConfigFile is set by -config-file and not itself part of the YAML
	// document; it names the file this Config was, or should be, loaded
	// from.
	ConfigFile string `yaml:"-"`
}

// New returns a Config with sane baseline defaults, applied before flag
// parsing.
func New() *Config {
	return &Config{
		ListenAddress:  ":9191",
		MetricsAddress: ":9911",
		LogLevel:       "info",
		SessionStore:   SessionStoreConfig{Kind: "memory"},
		Verifier:       VerifierConfig{Kind: "go-oidc"},
	}
}

// ParseArgs parses args into c: flags first define baseline overrides, then
// -config-file (if given) is read and merged, then flags are re-applied so
// a flag always wins over the file.
func (c *Config) ParseArgs(progname string, args []string) error {
	fs := flag.NewFlagSet(progname, flag.ContinueOnError)
	fs.StringVar(&c.ConfigFile, "config-file", "", "path to a YAML file describing virtual hosts and session store settings")
	fs.StringVar(&c.ListenAddress, "listen-address", c.ListenAddress, "network address the ext_authz gRPC server listens on")
	fs.StringVar(&c.MetricsAddress, "metrics-address", c.MetricsAddress, "network address the /metrics HTTP endpoint listens on; empty disables it")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "logrus level: panic, fatal, error, warn, info, debug, or trace")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "emit logs as JSON instead of logfmt-style text")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", strings.Join(fs.Args(), " "))
	}

	if c.ConfigFile != "" {
		raw, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		if err := fs.Parse(args); err != nil {
			return err
		}
	}

	return c.validate()
}

func (c *Config) validate() error {
	if c.SecretsFile == "" && len(c.Secrets) == 0 {
		return fmt.Errorf("config: one of secrets_file or secrets must be set")
	}
	if len(c.VirtualHosts) == 0 {
		return fmt.Errorf("config: at least one virtual host must be configured")
	}
	seen := make(map[string]bool, len(c.VirtualHosts))
	for _, vh := range c.VirtualHosts {
		if vh.Host == "" {
			return fmt.Errorf("config: virtual host entry missing 'host'")
		}
		if seen[vh.Host] {
			return fmt.Errorf("config: duplicate virtual host %q", vh.Host)
		}
		seen[vh.Host] = true
		if vh.ClientID == "" || vh.ClientSecret == "" {
			return fmt.Errorf("config: virtual host %q missing client_id/client_secret", vh.Host)
		}
		if vh.IDTokenHeader.Name == "" {
			return fmt.Errorf("config: virtual host %q missing id_token_header.name", vh.Host)
		}
	}
	switch c.SessionStore.Kind {
	case "memory", "redis", "valkey":
	default:
		return fmt.Errorf("config: unknown session_store.kind %q", c.SessionStore.Kind)
	}
	switch c.Verifier.Kind {
	case "go-oidc", "keyfunc":
	default:
		return fmt.Errorf("config: unknown verifier.kind %q", c.Verifier.Kind)
	}
	return nil
}
