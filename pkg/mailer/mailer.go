// Package mailer renders and hands off transactional email.
package mailer

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"

	"polygram/pkg/auth"
)

// Email is a rendered message.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends one-time passwords to users.
type Mailer interface {
	SendOTP(ctx context.Context, to, name, code string) error
}

type otpData struct {
	Name    string
	OTP     string
	Minutes int
}

var otpText = texttemplate.Must(texttemplate.New("otp_text").Parse(`Hi {{.Name}},

Thank you for choosing Polygram.

Here is your one time password: {{.OTP}}

Use it to proceed further. The OTP is valid for {{.Minutes}} minutes.

Thanks,
Team Polygram
`))

var otpHTML = htmltemplate.Must(htmltemplate.New("otp_html").Parse(`<div style="font-family:Helvetica,Arial,sans-serif;line-height:2">
  <div style="margin:50px auto;width:70%;padding:20px 0">
    <div style="border-bottom:1px solid #eee">
      <span style="font-size:1.4em;color:#00466a;font-weight:600">Polygram</span>
    </div>
    <p style="font-size:1.1em">Hi, {{.Name}}</p>
    <p>Thank you for choosing Polygram. Use the following OTP to proceed further. OTP is valid for {{.Minutes}} minutes</p>
    <h2 style="background:#00466a;margin:0 auto;width:max-content;padding:0 10px;color:#fff;border-radius:4px">{{.OTP}}</h2>
    <p style="font-size:0.9em">Regards,<br />Team Polygram</p>
  </div>
</div>
`))

// RenderOTP builds the OTP email for name.
func RenderOTP(to, name, code string) (Email, error) {
	data := otpData{Name: name, OTP: code, Minutes: int(auth.OTPValidity.Minutes())}
	var text, html bytes.Buffer
	if err := otpText.Execute(&text, data); err != nil {
		return Email{}, err
	}
	if err := otpHTML.Execute(&html, data); err != nil {
		return Email{}, err
	}
	return Email{
		To:      to,
		Subject: "Your Polygram verification code",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// LogMailer writes rendered mail to the log instead of an email provider.
// Codes are only logged when RevealCodes is set.
type LogMailer struct {
	Logger      *slog.Logger
	RevealCodes bool
}

func (m LogMailer) SendOTP(ctx context.Context, to, name, code string) error {
	email, err := RenderOTP(to, name, code)
	if err != nil {
		return err
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"to", maskEmail(email.To), "subject", email.Subject, "text_bytes", len(email.Text), "html_bytes", len(email.HTML)}
	if m.RevealCodes {
		attrs = append(attrs, "otp", code)
	}
	logger.InfoContext(ctx, "mail_sent", attrs...)
	return nil
}

func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
