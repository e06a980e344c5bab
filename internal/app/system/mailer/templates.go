// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"html/template"
	"strconv"
	"time"
)

// LoginCodeEmailData contains the data for a second-factor code email.
type LoginCodeEmailData struct {
	AppName   string
	Code      string
	ExpiresIn time.Duration
}

// ExpiresInMinutes rounds ExpiresIn up to whole minutes, minimum 1.
func (d LoginCodeEmailData) ExpiresInMinutes() int {
	m := int((d.ExpiresIn + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// LoginCodeSubject is the subject line for second-factor code emails.
const LoginCodeSubject = "Your verification code"

// LoginCodeEmail generates both plain text and HTML versions of a login code email.
func LoginCodeEmail(data LoginCodeEmailData) (textBody, htmlBody string, err error) {
	mins := data.ExpiresInMinutes()
	unit := " minutes"
	if mins == 1 {
		unit = " minute"
	}

	// Plain text version
	textBody = "Your " + data.AppName + " verification code is: " + data.Code + "\n\n" +
		"This code will expire in " + strconv.Itoa(mins) + unit + ".\n\n" +
		"If you did not try to sign in, you can safely ignore this email. Your password may be known to someone else; consider changing it."

	// HTML version
	var buf bytes.Buffer
	if err := loginCodeHTMLTmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return textBody, buf.String(), nil
}

var loginCodeHTMLTmpl = template.Must(template.New("login_code").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Verification Code</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f4f4f5;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f4f4f5;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1);">
          <!-- Header -->
          <tr>
            <td style="padding: 32px 32px 24px 32px; text-align: center; border-bottom: 1px solid #e4e4e7;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #18181b;">{{.AppName}}</h1>
            </td>
          </tr>
          <!-- Content -->
          <tr>
            <td style="padding: 32px;">
              <h2 style="margin: 0 0 16px 0; font-size: 20px; font-weight: 600; color: #18181b;">Your Verification Code</h2>
              <p style="margin: 0 0 24px 0; font-size: 15px; line-height: 1.6; color: #52525b;">
                Enter this code to finish signing in:
              </p>
              <!-- Code Box -->
              <table role="presentation" width="100%" cellspacing="0" cellpadding="0">
                <tr>
                  <td align="center" style="padding: 8px 0 24px 0;">
                    <div style="display: inline-block; padding: 16px 32px; background-color: #f4f4f5; border-radius: 8px; font-size: 32px; font-weight: 700; letter-spacing: 4px; color: #18181b;">{{.Code}}</div>
                  </td>
                </tr>
              </table>
              <p style="margin: 0; font-size: 14px; line-height: 1.6; color: #71717a;">
                This code will expire in <strong>{{.ExpiresInMinutes}} {{if eq .ExpiresInMinutes 1}}minute{{else}}minutes{{end}}</strong>. If you didn't request this, you can safely ignore this email.
              </p>
            </td>
          </tr>
          <!-- Footer -->
          <tr>
            <td style="padding: 24px 32px; background-color: #fafafa; border-top: 1px solid #e4e4e7; border-radius: 0 0 8px 8px;">
              <p style="margin: 0; font-size: 12px; color: #a1a1aa; text-align: center;">
                Never share this code. {{.AppName}} staff will never ask for it.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`))
