// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// AuthConfig holds authentication configuration for server mode. All of it is
// optional; with nothing set the server runs anonymously.
type AuthConfig struct {
	IssuerURL    string // OIDC issuer URL for remote-keyset JWT validation
	Audience     string // required JWT audience claim
	JWTSecret    string // HS256 shared secret for local/dev JWT auth
	APIKey       string // static API key, compared as sha256 hex
	APIKeyHeader string // header name for API keys (default: X-API-Key)
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != ""
}

// Anonymous returns true when no credential scheme is configured at all.
func (a *AuthConfig) Anonymous() bool {
	return a.JWTSecret == "" && a.APIKey == "" && !a.OIDCEnabled()
}

// S3Config holds credentials for s3:// schema sources. Endpoint is optional
// and enables S3-compatible stores; path-style addressing is the default for
// those.
type S3Config struct {
	KeyID        string
	Secret       string
	Endpoint     string
	Region       string
	UsePathStyle bool
}

// Configured returns true if the required S3 fields are set.
func (s *S3Config) Configured() bool {
	return s.KeyID != "" && s.Secret != ""
}

// GCSConfig holds credentials for gs:// schema sources. An empty
// CredentialsFile falls back to application default credentials.
type GCSConfig struct {
	CredentialsFile string
}

// AzureConfig holds shared-key credentials for az:// schema sources.
type AzureConfig struct {
	AccountName string
	AccountKey  string
}

// Configured returns true if both Azure fields are set.
func (a *AzureConfig) Configured() bool {
	return a.AccountName != "" && a.AccountKey != ""
}

// Config holds configuration for the CLI and server mode.
type Config struct {
	ListenAddr     string // HTTP listen address (default ":8080")
	WorkspaceDir   string // directory watched for *.fieldmap.yaml documents (default ".")
	OutputDir      string // directory for rendered artifacts (default "output")
	HistoryDB      string // path to the SQLite run-history file
	RulesDir       string // directory of custom .star rules (optional)
	RevalidateCron string // cron expression for workspace revalidation (default "@hourly")
	LogLevel       string // log level: debug, info, warn, error (default "info")

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	Auth  AuthConfig
	S3    S3Config
	GCS   GCSConfig
	Azure AzureConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from FIELDMAP_* environment variables. Everything
// is optional; missing values fall back to defaults and suspect values are
// reported through Warnings rather than failing the load.
func Load() *Config {
	cfg := &Config{
		ListenAddr:     os.Getenv("FIELDMAP_LISTEN_ADDR"),
		WorkspaceDir:   os.Getenv("FIELDMAP_WORKSPACE_DIR"),
		OutputDir:      os.Getenv("FIELDMAP_OUTPUT_DIR"),
		HistoryDB:      os.Getenv("FIELDMAP_HISTORY_DB"),
		RulesDir:       os.Getenv("FIELDMAP_RULES_DIR"),
		RevalidateCron: os.Getenv("FIELDMAP_REVALIDATE_CRON"),
		LogLevel:       os.Getenv("FIELDMAP_LOG_LEVEL"),
	}

	// Rate limiting
	if v := os.Getenv("FIELDMAP_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("FIELDMAP_RATE_LIMIT_RPS=%q is not a positive number, using default", v))
		}
	}
	if v := os.Getenv("FIELDMAP_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("FIELDMAP_RATE_LIMIT_BURST=%q is not a positive integer, using default", v))
		}
	}

	// CORS
	if v := os.Getenv("FIELDMAP_CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Auth config
	cfg.Auth = AuthConfig{
		IssuerURL:    os.Getenv("FIELDMAP_AUTH_ISSUER_URL"),
		Audience:     os.Getenv("FIELDMAP_AUTH_AUDIENCE"),
		JWTSecret:    os.Getenv("FIELDMAP_JWT_SECRET"),
		APIKey:       os.Getenv("FIELDMAP_API_KEY"),
		APIKeyHeader: os.Getenv("FIELDMAP_API_KEY_HEADER"),
	}

	// Schema source credentials
	cfg.S3 = S3Config{
		KeyID:        os.Getenv("FIELDMAP_S3_KEY_ID"),
		Secret:       os.Getenv("FIELDMAP_S3_SECRET"),
		Endpoint:     os.Getenv("FIELDMAP_S3_ENDPOINT"),
		Region:       os.Getenv("FIELDMAP_S3_REGION"),
		UsePathStyle: parseBoolEnvDefault("FIELDMAP_S3_PATH_STYLE", os.Getenv("FIELDMAP_S3_ENDPOINT") != ""),
	}
	cfg.GCS = GCSConfig{
		CredentialsFile: os.Getenv("FIELDMAP_GCS_CREDENTIALS_FILE"),
	}
	cfg.Azure = AzureConfig{
		AccountName: os.Getenv("FIELDMAP_AZURE_ACCOUNT_NAME"),
		AccountKey:  os.Getenv("FIELDMAP_AZURE_ACCOUNT_KEY"),
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = "."
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = "fieldmap_history.sqlite"
	}
	if cfg.RevalidateCron == "" {
		cfg.RevalidateCron = "@hourly"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = "X-API-Key"
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}

	if cfg.Auth.OIDCEnabled() && cfg.Auth.Audience == "" {
		cfg.Warnings = append(cfg.Warnings, "FIELDMAP_AUTH_ISSUER_URL is set without FIELDMAP_AUTH_AUDIENCE, tokens for any audience will be accepted")
	}
	if cfg.Auth.Anonymous() {
		cfg.Warnings = append(cfg.Warnings, "no auth configured, server endpoints are open; set FIELDMAP_JWT_SECRET, FIELDMAP_API_KEY, or FIELDMAP_AUTH_ISSUER_URL")
	}
	if (cfg.Azure.AccountName == "") != (cfg.Azure.AccountKey == "") {
		cfg.Warnings = append(cfg.Warnings, "Azure credentials are incomplete; both FIELDMAP_AZURE_ACCOUNT_NAME and FIELDMAP_AZURE_ACCOUNT_KEY are required for az:// sources")
	}
	if (cfg.S3.KeyID == "") != (cfg.S3.Secret == "") {
		cfg.Warnings = append(cfg.Warnings, "S3 credentials are incomplete; both FIELDMAP_S3_KEY_ID and FIELDMAP_S3_SECRET are required for s3:// sources")
	}

	return cfg
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
