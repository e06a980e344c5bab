package bootstrap

import (
	"testing"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/stretchr/testify/assert"
)

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:           "mongodb://localhost:27017",
		MongoDatabase:      "securenotes",
		SessionKey:         "k7Qz0pXv3nR8sT2wY5bC9dF1gH4jL6mN",
		SessionName:        auth.DefaultSessionName,
		SessionBackend:     auth.BackendCookie,
		SessionMaxAge:      12 * time.Hour,
		IdleTimeout:        15 * time.Minute,
		MaxFails:           5,
		LockFor:            15 * time.Minute,
		LoginRatePerMinute: 20,
		LoginRateBurst:     10,
		OTPExpiry:          5 * time.Minute,
		BcryptCost:         12,
		CSRFKey:            "0123456789abcdef0123456789abcdef",
		AuditMode:          auditlog.ModeAll,
		AuditBuffer:        auditlog.DefaultBuffer,
		AuditRetries:       auditlog.DefaultRetries,
		MailBackend:        MailBackendSMTP,
		MailSMTPHost:       "localhost",
		MailSMTPPort:       587,
		MailFrom:           "noreply@example.com",
		SMTPTimeout:        10 * time.Second,
		BaseURL:            "https://notes.example.com",
	}
}

func TestValidateAppConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AppConfig)
		want   string // substring of the error, "" for valid
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"log mailer skips smtp checks", func(c *AppConfig) {
			c.MailBackend = MailBackendLog
			c.MailSMTPHost = ""
			c.MailFrom = ""
		}, ""},
		{"proxies", func(c *AppConfig) { c.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.7"} }, ""},
		{"zero idle", func(c *AppConfig) { c.IdleTimeout = 0 }, "idle_seconds must be positive"},
		{"zero max fails", func(c *AppConfig) { c.MaxFails = 0 }, "max_fails must be positive"},
		{"zero otp expiry", func(c *AppConfig) { c.OTPExpiry = 0 }, "otp_exp_minutes must be positive"},
		{"cost too low", func(c *AppConfig) { c.BcryptCost = 2 }, "bcrypt_cost"},
		{"session backend", func(c *AppConfig) { c.SessionBackend = "redis" }, `unknown session_backend "redis"`},
		{"audit mode", func(c *AppConfig) { c.AuditMode = "syslog" }, `unknown audit_mode "syslog"`},
		{"mail backend", func(c *AppConfig) { c.MailBackend = "ses" }, `unknown mail_backend "ses"`},
		{"smtp host", func(c *AppConfig) { c.MailSMTPHost = "" }, "mail_smtp_host"},
		{"mail from", func(c *AppConfig) { c.MailFrom = "not-an-address" }, "mail_from"},
		{"bad proxy", func(c *AppConfig) { c.TrustedProxies = []string{"10.0.0.0/99"} }, "trusted_proxies"},
		{"base url", func(c *AppConfig) { c.BaseURL = "ftp://notes.example.com" }, "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := validateAppConfig(cfg)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidateAppConfig_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.MaxFails = 0
	cfg.AuditMode = "loud"

	err := validateAppConfig(cfg)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "max_fails")
		assert.Contains(t, err.Error(), "audit_mode")
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"10.0.0.0/8", "::1"}, splitList(" 10.0.0.0/8 ,, ::1 "))
}

func TestBaseHost(t *testing.T) {
	assert.Equal(t, "notes.example.com:8443", baseHost("https://notes.example.com:8443/app"))
	assert.Equal(t, "", baseHost(""))
}
