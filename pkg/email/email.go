package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"go-screening-backend/config"
	"go-screening-backend/internal/domain"
)

// EmailService sends candidate-facing mail via SMTP
type EmailService struct {
	host      string
	port      string
	username  string
	password  string
	fromEmail string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailService creates a new email service with Brevo SMTP configuration
func NewEmailService(cfg *config.Config) *EmailService {
	from := cfg.SMTPFromEmail
	if from == "" {
		from = cfg.SMTPUsername
	}
	return &EmailService{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		username:  cfg.SMTPUsername,
		password:  cfg.SMTPPassword,
		fromEmail: from,
		send:      smtp.SendMail,
	}
}

type invitationData struct {
	CandidateName string
	JobTitle      string
	Link          string
	QuestionCount int
	ExpiresAt     string
}

const verixInvitationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>A few questions about your application</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #0066cc; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background: #f9f9f9; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; }
        .footer { text-align: center; padding: 20px; color: #888; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.JobTitle}}</h1>
        </div>
        <div class="content">
            <p>Hi {{if .CandidateName}}{{.CandidateName}}{{else}}there{{end}},</p>
            <p>Thanks for applying. Before we continue, we would like you to answer {{.QuestionCount}} short question{{if gt .QuestionCount 1}}s{{end}} about your experience.</p>
            <p><a class="button" href="{{.Link}}">Answer the questions</a></p>
            <p>The link stays valid until {{.ExpiresAt}}.</p>
        </div>
        <div class="footer">
            <p>If the button does not work, copy this address into your browser: {{.Link}}</p>
        </div>
    </div>
</body>
</html>`

var invitationTmpl = template.Must(template.New("verix").Parse(verixInvitationTemplate))

// SendVerixInvitation implements domain.Mailer.
func (s *EmailService) SendVerixInvitation(ctx context.Context, inv domain.VerixInvitation) error {
	if inv.CandidateEmail == "" {
		return fmt.Errorf("candidate has no email address")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := invitationTmpl.Execute(&body, invitationData{
		CandidateName: inv.CandidateName,
		JobTitle:      inv.JobTitle,
		Link:          inv.Link,
		QuestionCount: inv.QuestionCount,
		ExpiresAt:     inv.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST"),
	}); err != nil {
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	msg := buildMessage(s.fromEmail, inv.CandidateEmail, fmt.Sprintf("Next step for %s", inv.JobTitle), body.String())

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.send(addr, auth, s.fromEmail, []string{inv.CandidateEmail}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, html string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		from, to, subject, html,
	))
}

// IsConfigured checks if the email service has valid SMTP configuration
func (s *EmailService) IsConfigured() bool {
	return s.host != "" && s.username != "" && s.password != ""
}
