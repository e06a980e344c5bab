package auditlog

// Activity event types.
const (
	EventLoginBlockedLockout = "LOGIN_BLOCKED_LOCKOUT"
	EventLoginFailed         = "LOGIN_FAILED"
	EventOTPDeliveryFailed   = "OTP_DELIVERY_FAILED"
	EventLoginPasswordOK2FA  = "LOGIN_PASSWORD_OK_2FA_REQUIRED"
	EventOTPFailed           = "OTP_FAILED"
	EventOTPSuccess          = "OTP_SUCCESS"
	EventLoginSuccess        = "LOGIN_SUCCESS"
	EventRegisterSuccess     = "REGISTER_SUCCESS"
	EventLogoutManual        = "LOGOUT_MANUAL"
	EventSessionIdleTimeout  = "SESSION_IDLE_TIMEOUT"
	EventSessionExpired      = "SESSION_EXPIRED"
	EventLoginRateLimited    = "LOGIN_RATE_LIMITED"
)

// EventTypes lists every type, in flow order.
var EventTypes = []string{
	EventLoginBlockedLockout,
	EventLoginFailed,
	EventOTPDeliveryFailed,
	EventLoginPasswordOK2FA,
	EventOTPFailed,
	EventOTPSuccess,
	EventLoginSuccess,
	EventRegisterSuccess,
	EventLogoutManual,
	EventSessionIdleTimeout,
	EventSessionExpired,
	EventLoginRateLimited,
}

// Reason tags carried in Details.
const (
	ReasonUnknownEmail  = "unknown_email"
	ReasonNoPassword    = "no_password"
	ReasonBadPassword   = "bad_password"
	ReasonMalformedCode = "malformed_code"
	ReasonLocked        = "locked"
	ReasonSMTPError     = "smtp_error"
)
