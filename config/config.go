// ABOUTME: Process configuration loaded from .env and environment variables
// ABOUTME: Groups provider credentials and reports which integrations are usable
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration. Every field maps to one
// environment variable; see the envconfig tags.
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	AppURL      string `envconfig:"APP_URL" default:"http://localhost:3000"`

	HTTPClientTimeout time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`

	Supabase   SupabaseConfig   `ignored:"true"`
	ElevenLabs ElevenLabsConfig `ignored:"true"`
	Twilio     TwilioConfig     `ignored:"true"`
	Salesforce SalesforceConfig `ignored:"true"`
	Resend     ResendConfig     `ignored:"true"`
	Dialer     DialerConfig     `ignored:"true"`
}

type SupabaseConfig struct {
	URL                  string `envconfig:"SUPABASE_URL"`
	ServiceRoleKey       string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret            string `envconfig:"SUPABASE_JWT_SECRET"`
	SimulateCallFunction string `envconfig:"SIMULATE_CALL_FUNCTION" default:"simulate-call"`
}

type ElevenLabsConfig struct {
	APIKey        string `envconfig:"ELEVENLABS_API_KEY"`
	BaseURL       string `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`
	PhoneNumberID string `envconfig:"ELEVENLABS_PHONE_NUMBER_ID"`
	WebhookSecret string `envconfig:"ELEVENLABS_WEBHOOK_SECRET"`
}

type TwilioConfig struct {
	AccountSID   string `envconfig:"TWILIO_ACCOUNT_SID"`
	APIKeySID    string `envconfig:"TWILIO_API_KEY_SID"`
	APIKeySecret string `envconfig:"TWILIO_API_KEY_SECRET"`
	TwiMLAppSID  string `envconfig:"TWILIO_TWIML_APP_SID"`
	AuthToken    string `envconfig:"TWILIO_AUTH_TOKEN"`
	CallerID     string `envconfig:"TWILIO_CALLER_ID"`
}

type SalesforceConfig struct {
	ClientID     string `envconfig:"SALESFORCE_CLIENT_ID"`
	ClientSecret string `envconfig:"SALESFORCE_CLIENT_SECRET"`
	LoginURL     string `envconfig:"SALESFORCE_LOGIN_URL" default:"https://login.salesforce.com"`
	RedirectURL  string `envconfig:"SALESFORCE_REDIRECT_URL"`
}

type ResendConfig struct {
	APIKey            string `envconfig:"RESEND_API_KEY"`
	From              string `envconfig:"RESEND_FROM" default:"Henk <notifications@callhenk.com>"`
	NotificationEmail string `envconfig:"NOTIFICATION_EMAIL"`
	BaseURL           string `envconfig:"RESEND_BASE_URL"`
}

type DialerConfig struct {
	Interval    time.Duration `envconfig:"DIALER_INTERVAL" default:"1m"`
	BatchSize   int           `envconfig:"DIALER_BATCH_SIZE" default:"10"`
	Concurrency int           `envconfig:"DIALER_CONCURRENCY" default:"4"`

	// ClaimTimeout requeues in_progress leads whose call never reported back.
	ClaimTimeout time.Duration `envconfig:"DIALER_CLAIM_TIMEOUT" default:"30m"`
}

// Load reads an optional .env file from the working directory and then
// the process environment. Real environment variables win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	groups := []any{&cfg, &cfg.Supabase, &cfg.ElevenLabs, &cfg.Twilio, &cfg.Salesforce, &cfg.Resend, &cfg.Dialer}
	for _, group := range groups {
		if err := envconfig.Process("", group); err != nil {
			return nil, fmt.Errorf("failed to process environment: %w", err)
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DefaultDatabasePath()
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	cfg.ElevenLabs.BaseURL = strings.TrimRight(cfg.ElevenLabs.BaseURL, "/")
	cfg.Supabase.URL = strings.TrimRight(cfg.Supabase.URL, "/")
	if cfg.Salesforce.RedirectURL == "" {
		cfg.Salesforce.RedirectURL = cfg.AppURL + "/api/integrations/salesforce/callback"
	}

	if cfg.Dialer.BatchSize <= 0 {
		cfg.Dialer.BatchSize = 10
	}
	if cfg.Dialer.Concurrency <= 0 {
		cfg.Dialer.Concurrency = 1
	}
	return &cfg, nil
}

// DefaultDatabasePath is the SQLite file used when DATABASE_URL is unset.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "henk", "henk.db")
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// EdgeFunctionsEnabled reports whether Supabase edge functions can be invoked.
func (c *Config) EdgeFunctionsEnabled() bool {
	return c.Supabase.URL != "" && c.Supabase.ServiceRoleKey != ""
}

func (c ElevenLabsConfig) Enabled() bool {
	return c.APIKey != ""
}

// TokensEnabled reports whether Voice SDK access tokens can be minted.
func (c TwilioConfig) TokensEnabled() bool {
	return c.AccountSID != "" && c.APIKeySID != "" && c.APIKeySecret != ""
}

func (c SalesforceConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c ResendConfig) Enabled() bool {
	return c.APIKey != ""
}
