// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.anysite/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Inference: backend endpoint and access tokens
//   - Quota: anonymous-use allowance enforced by the fingerprint gate
//   - OAuth: identity provider client credentials
//   - Gallery: share/export collaborator endpoint and token
//   - Server: address, CORS, proxy trust, rate limiting
//
// Security: sensitive values (tokens, secrets) are masked in MarshalJSON()
// and String(); never log a Config except through those.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrMissingInferenceEndpoint indicates no inference backend URL is configured.
	ErrMissingInferenceEndpoint = errors.New("missing inference endpoint URL")

	// ErrMissingFingerprintSecret indicates the fingerprint HMAC secret is empty.
	ErrMissingFingerprintSecret = errors.New("missing fingerprint secret")

	// ErrInvalidQuotaLimit indicates the anonymous quota limit is out of range.
	ErrInvalidQuotaLimit = errors.New("invalid quota limit")

	// ErrInvalidQuotaWindow indicates the quota record lifetime is not positive.
	ErrInvalidQuotaWindow = errors.New("invalid quota window")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Server
	Addr        string   `mapstructure:"addr" json:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Inference backend (speaks the raw-text / JSON-error-frame chunk protocol)
	InferenceEndpointURL string `mapstructure:"inference_endpoint_url" json:"inference_endpoint_url"`
	InferenceToken       string `mapstructure:"inference_token" json:"inference_token"` // SENSITIVE: masked in MarshalJSON
	BypassToken          string `mapstructure:"bypass_token" json:"bypass_token"`       // SENSITIVE: masked in MarshalJSON

	// Anonymous-use quota
	FingerprintSecret string `mapstructure:"fingerprint_secret" json:"fingerprint_secret"` // SENSITIVE: masked in MarshalJSON
	QuotaLimit        int    `mapstructure:"quota_limit" json:"quota_limit"`
	QuotaWindowHours  int    `mapstructure:"quota_window_hours" json:"quota_window_hours"`

	// OAuth identity provider
	OAuthClientID     string `mapstructure:"oauth_client_id" json:"oauth_client_id"`
	OAuthClientSecret string `mapstructure:"oauth_client_secret" json:"oauth_client_secret"` // SENSITIVE: masked in MarshalJSON
	OAuthAuthorizeURL string `mapstructure:"oauth_authorize_url" json:"oauth_authorize_url"`
	OAuthTokenURL     string `mapstructure:"oauth_token_url" json:"oauth_token_url"`
	RedirectURI       string `mapstructure:"redirect_uri" json:"redirect_uri"`

	// Share/export gallery collaborator
	GalleryBaseURL   string `mapstructure:"gallery_base_url" json:"gallery_base_url"`
	GalleryAuthToken string `mapstructure:"gallery_auth_token" json:"gallery_auth_token"` // SENSITIVE: masked in MarshalJSON

	// Local persistence directory for the version log and share filename
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// Logging
	LogJSON bool `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".anysite")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use defaults
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	viper.SetDefault("addr", ":5001")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("inference_endpoint_url", "")
	viper.SetDefault("fingerprint_secret", "parthib-anysite")
	viper.SetDefault("quota_limit", 50)
	viper.SetDefault("quota_window_hours", 24)

	viper.SetDefault("oauth_authorize_url", "https://huggingface.co/oauth/authorize")
	viper.SetDefault("oauth_token_url", "https://huggingface.co/oauth/token")
	viper.SetDefault("redirect_uri", "http://localhost:5001/api/auth/login")

	viper.SetDefault("gallery_base_url", "https://anysite-gallery.parthib.ai")

	viper.SetDefault("data_dir", filepath.Join(configDir, "data"))
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are only accepted via the environment or the config file, never flags.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "ANYSITE_ADDR")
	mustBind("cors_origins", "ANYSITE_CORS_ORIGINS")
	mustBind("trust_proxy", "ANYSITE_TRUST_PROXY")
	mustBind("rate_burst", "ANYSITE_RATE_BURST")

	mustBind("inference_endpoint_url", "INFERENCE_ENDPOINT_URL")
	mustBind("inference_token", "DEFAULT_HF_TOKEN")
	mustBind("bypass_token", "NOVITA_API_TOKEN")

	mustBind("fingerprint_secret", "ANYSITE_FINGERPRINT_SECRET")
	mustBind("quota_limit", "ANYSITE_QUOTA_LIMIT")

	mustBind("oauth_client_id", "OAUTH_CLIENT_ID")
	mustBind("oauth_client_secret", "OAUTH_CLIENT_SECRET")
	mustBind("redirect_uri", "REDIRECT_URI")

	mustBind("gallery_base_url", "ANYSITE_GALLERY_BASE_URL")
	mustBind("gallery_auth_token", "ANYSITE_GALLERY_AUTH_TOKEN")

	mustBind("data_dir", "ANYSITE_DATA_DIR")
	mustBind("log_json", "ANYSITE_LOG_JSON")
}

// Validate performs fail-fast validation of values every mode needs.
func (c *Config) Validate() error {
	if c.FingerprintSecret == "" {
		return ErrMissingFingerprintSecret
	}
	if c.QuotaLimit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuotaLimit, c.QuotaLimit)
	}
	if c.QuotaWindowHours <= 0 {
		return fmt.Errorf("%w: %d hours", ErrInvalidQuotaWindow, c.QuotaWindowHours)
	}
	return nil
}

// ValidateServe checks values required to run the HTTP server.
func (c *Config) ValidateServe() error {
	if c.InferenceEndpointURL == "" {
		return ErrMissingInferenceEndpoint
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer ones keep the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.InferenceToken = maskSecret(a.InferenceToken)
	a.BypassToken = maskSecret(a.BypassToken)
	a.FingerprintSecret = maskSecret(a.FingerprintSecret)
	a.OAuthClientSecret = maskSecret(a.OAuthClientSecret)
	a.GalleryAuthToken = maskSecret(a.GalleryAuthToken)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
