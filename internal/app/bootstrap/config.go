// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/inputval"
	"github.com/dalemusser/securenotes/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "SECURENOTES"

// Mail backends.
const (
	MailBackendSMTP = "smtp"
	MailBackendLog  = "log"
)

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: SECURENOTES_MONGO_URI, SECURENOTES_IDLE_SECONDS, etc.
//   - Command-line flags: --mongo_uri, --idle_seconds, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "securenotes", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: auth.DefaultSessionName, Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_backend", Default: auth.BackendCookie, Desc: "Session backend: 'cookie', 'mongo', or 'filesystem'"},
	{Name: "session_dir", Default: "", Desc: "Directory for filesystem sessions (blank means the OS temp dir)"},
	{Name: "session_max_age", Default: "12h", Desc: "Absolute session lifetime (e.g., 12h, 30m)"},
	{Name: "idle_seconds", Default: 900, Desc: "Seconds of inactivity before an authenticated session ends"},

	// Brute-force protection
	{Name: "max_fails", Default: 5, Desc: "Consecutive failed logins that lock an email"},
	{Name: "lock_minutes", Default: 15, Desc: "Minutes an email stays locked"},
	{Name: "login_rate_per_minute", Default: 20, Desc: "Per-IP login/verify POSTs allowed per minute"},
	{Name: "login_rate_burst", Default: 10, Desc: "Per-IP login/verify burst"},

	// Second factor
	{Name: "otp_exp_minutes", Default: 5, Desc: "Minutes a login code stays valid"},
	{Name: "bcrypt_cost", Default: 12, Desc: "bcrypt cost for new password hashes"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	{Name: "trusted_proxies", Default: "", Desc: "Comma-separated CIDRs whose X-Forwarded-For is trusted"},

	// Audit logging settings
	{Name: "audit_mode", Default: auditlog.ModeAll, Desc: "Audit destination: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_buffer", Default: auditlog.DefaultBuffer, Desc: "Audit queue capacity"},
	{Name: "audit_retries", Default: auditlog.DefaultRetries, Desc: "Audit insert attempts per entry"},

	// Email/SMTP configuration
	{Name: "mail_backend", Default: MailBackendSMTP, Desc: "Mail backend: 'smtp' or 'log'"},
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@example.com", Desc: "From email address"},
	{Name: "mail_from_name", Default: "SecureNotes", Desc: "From display name"},
	{Name: "smtp_timeout", Default: "10s", Desc: "Dial and send timeout for one message"},

	{Name: "base_url", Default: "http://localhost:8080", Desc: "Public base URL of the site"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// SECURENOTES_* environment variables and flags with precedence
// flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	if n := timeouts.ConfigureFromEnv(EnvVarPrefix); n > 0 {
		logger.Info("request timeouts overridden from environment", zap.Int("count", n))
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:     appValues.String("session_key"),
		SessionName:    appValues.String("session_name"),
		SessionDomain:  appValues.String("session_domain"),
		SessionBackend: appValues.String("session_backend"),
		SessionDir:     appValues.String("session_dir"),
		SessionMaxAge:  appValues.Duration("session_max_age", 12*time.Hour),
		IdleTimeout:    time.Duration(appValues.Int("idle_seconds")) * time.Second,

		MaxFails:           appValues.Int("max_fails"),
		LockFor:            time.Duration(appValues.Int("lock_minutes")) * time.Minute,
		LoginRatePerMinute: appValues.Int("login_rate_per_minute"),
		LoginRateBurst:     appValues.Int("login_rate_burst"),

		OTPExpiry:  time.Duration(appValues.Int("otp_exp_minutes")) * time.Minute,
		BcryptCost: appValues.Int("bcrypt_cost"),

		CSRFKey:        appValues.String("csrf_key"),
		TrustedProxies: splitList(appValues.String("trusted_proxies")),

		AuditMode:    appValues.String("audit_mode"),
		AuditBuffer:  appValues.Int("audit_buffer"),
		AuditRetries: appValues.Int("audit_retries"),

		MailBackend:  appValues.String("mail_backend"),
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		SMTPTimeout:  appValues.Duration("smtp_timeout", 10*time.Second),

		BaseURL: appValues.String("base_url"),
	}

	return coreCfg, appCfg, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateAppConfig(appCfg); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	return nil
}

// validateAppConfig checks everything ValidateConfig checks except the Mongo
// URI.
func validateAppConfig(appCfg AppConfig) error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"session_max_age", appCfg.SessionMaxAge > 0},
		{"idle_seconds", appCfg.IdleTimeout > 0},
		{"max_fails", appCfg.MaxFails > 0},
		{"lock_minutes", appCfg.LockFor > 0},
		{"otp_exp_minutes", appCfg.OTPExpiry > 0},
		{"login_rate_per_minute", appCfg.LoginRatePerMinute > 0},
		{"login_rate_burst", appCfg.LoginRateBurst > 0},
		{"audit_buffer", appCfg.AuditBuffer > 0},
		{"audit_retries", appCfg.AuditRetries > 0},
		{"smtp_timeout", appCfg.SMTPTimeout > 0},
	}
	for _, p := range positive {
		if !p.ok {
			bad("%s must be positive", p.name)
		}
	}

	if appCfg.BcryptCost < bcrypt.MinCost || appCfg.BcryptCost > bcrypt.MaxCost {
		bad("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch appCfg.SessionBackend {
	case auth.BackendCookie, auth.BackendMongo, auth.BackendFilesystem:
	default:
		bad("unknown session_backend %q", appCfg.SessionBackend)
	}

	switch appCfg.AuditMode {
	case auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
	default:
		bad("unknown audit_mode %q", appCfg.AuditMode)
	}

	switch appCfg.MailBackend {
	case MailBackendSMTP:
		if appCfg.MailSMTPHost == "" || appCfg.MailSMTPPort <= 0 {
			bad("smtp mail backend needs mail_smtp_host and mail_smtp_port")
		}
		if !inputval.IsValidEmail(appCfg.MailFrom) {
			bad("mail_from %q is not an email address", appCfg.MailFrom)
		}
	case MailBackendLog:
	default:
		bad("unknown mail_backend %q", appCfg.MailBackend)
	}

	for _, cidr := range appCfg.TrustedProxies {
		if !inputval.IsValidCIDR(cidr) {
			bad("trusted_proxies entry %q is not a CIDR or address", cidr)
		}
	}

	if appCfg.BaseURL != "" && !inputval.IsValidHTTPURL(appCfg.BaseURL) {
		bad("base_url %q is not an http(s) URL", appCfg.BaseURL)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// baseHost returns the host[:port] of base_url, or "" when unset.
func baseHost(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
