// Package config provides environment-based configuration for the Ember
// authentication core.
//
// Configuration is loaded from environment variables using Viper, with
// sensible defaults for development.
//
// # Environment Variables
//
//   - DB_TYPE: Database type (sqlite, postgres, mysql). Default: sqlite
//   - DSN: Database connection string. Default: ember.db
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: HTTP server port. Default: 8080
//   - TOTP_ISSUER: Issuer name in provisioning URIs. Default: Ember
//   - TOTP_STEP: TOTP time step in seconds. Default: 30
//   - TOTP_WINDOW: Accepted step windows either side of now. Default: 1
//   - TOTP_DIGITS: Code length. Default: 6
//   - CERT_LIFETIME: Identity certificate lifetime. Default: 6h
//   - ASSERTION_LIFETIME: Bearer assertion lifetime. Default: 219000h (~25y)
//   - SIGNING_DOMAIN: Domain for synthetic certificate emails
//   - OAUTH_URL: OAuth authorization server base URL
//   - OAUTH_TIMEOUT: OAuth exchange request timeout. Default: 1s
//   - OAUTH_CLIENT_ID: Client identifier sent on exchange
//   - SIGNER_URL: Remote certificate signer base URL
//   - SIGNING_KEY_FILE: PEM file holding the local assertion signing key
//   - REDIS_ADDR: Redis address for the customs limiter (empty: in-memory)
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Port            int    `mapstructure:"PORT"`

	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`
	TOTPStep   int    `mapstructure:"TOTP_STEP"`
	TOTPWindow int    `mapstructure:"TOTP_WINDOW"`
	TOTPDigits int    `mapstructure:"TOTP_DIGITS"`

	CertLifetime      time.Duration `mapstructure:"CERT_LIFETIME"`
	AssertionLifetime time.Duration `mapstructure:"ASSERTION_LIFETIME"`
	SigningDomain     string        `mapstructure:"SIGNING_DOMAIN"`
	OAuthURL          string        `mapstructure:"OAUTH_URL"`
	OAuthTimeout      time.Duration `mapstructure:"OAUTH_TIMEOUT"`
	OAuthClientID     string        `mapstructure:"OAUTH_CLIENT_ID"`
	SignerURL         string        `mapstructure:"SIGNER_URL"`
	SigningKeyFile    string        `mapstructure:"SIGNING_KEY_FILE"`

	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DB_TYPE", "sqlite")
	viper.SetDefault("DSN", "ember.db")
	viper.SetDefault("SKIP_AUTO_MIGRATE", false)

	viper.SetDefault("TOTP_ISSUER", "Ember")
	viper.SetDefault("TOTP_STEP", 30)
	viper.SetDefault("TOTP_WINDOW", 1)
	viper.SetDefault("TOTP_DIGITS", 6)

	viper.SetDefault("CERT_LIFETIME", 6*time.Hour)
	// Deliberately far longer than any security need: the assertion absorbs
	// client clock skew, the certificate carries the real lifetime.
	viper.SetDefault("ASSERTION_LIFETIME", 25*365*24*time.Hour)
	viper.SetDefault("SIGNING_DOMAIN", "api.accounts.ember.dev")
	viper.SetDefault("OAUTH_URL", "http://localhost:9000")
	viper.SetDefault("OAUTH_TIMEOUT", time.Second)
	viper.SetDefault("OAUTH_CLIENT_ID", "ember-internal")
	viper.SetDefault("SIGNER_URL", "http://localhost:9100")
	viper.SetDefault("SIGNING_KEY_FILE", "signing-key.pem")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
