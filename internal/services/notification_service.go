// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	texttemplate "text/template"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/campushub/backend/internal/config"
	"github.com/campushub/backend/internal/models"
)

// Mailer delivers one email with an HTML body and a plain text alternative.
type Mailer interface {
	Send(to, subject, textBody, htmlBody string) error
}

type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
	}
}

func (m *SMTPMailer) Send(to, subject, textBody, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogMailer is used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, textBody, _ string) error {
	logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info(textBody)
	return nil
}

// NewMailer picks SMTP when a host is configured.
func NewMailer(cfg config.EmailConfig) Mailer {
	if cfg.SMTPHost == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

type NotificationService struct {
	mailer Mailer
	config *config.Config
}

type emailTemplate struct {
	Subject string
	Text    *texttemplate.Template
	HTML    *template.Template
}

func NewNotificationService(config *config.Config, mailer Mailer) *NotificationService {
	return &NotificationService{
		mailer: mailer,
		config: config,
	}
}

func (s *NotificationService) SendVerificationEmail(profile *models.Profile, token string) {
	if s == nil {
		return
	}
	s.deliver(profile.Email, "verification", map[string]interface{}{
		"Username":        profile.Username,
		"VerificationURL": fmt.Sprintf("%s/verify-email?token=%s", s.config.Frontend.BaseURL, token),
	})
}

func (s *NotificationService) SendPaymentCompleted(p *models.Payment, opp *models.Opportunity, buyer, seller *models.Profile) {
	data := map[string]interface{}{
		"Title":     opp.Title,
		"Amount":    p.Amount.String(),
		"Currency":  p.Currency,
		"Method":    p.PaymentMethod,
		"PaymentID": p.ID,
		"Sandbox":   p.SettlementMode == models.SettlementModeSandbox,
	}

	if buyer != nil {
		s.deliver(buyer.Email, "payment_completed", withName(data, buyer))
	}
	if seller != nil {
		s.deliver(seller.Email, "sale_completed", withName(data, seller))
	}
}

func (s *NotificationService) SendEscrowSettled(p *models.Payment, opp *models.Opportunity, parties ...*models.Profile) {
	name := "escrow_released"
	if p.PaymentStatus == models.PaymentStatusRefunded {
		name = "escrow_refunded"
	}

	data := map[string]interface{}{
		"Title":     opp.Title,
		"Amount":    p.Amount.String(),
		"Currency":  p.Currency,
		"PaymentID": p.ID,
		"TxHash":    p.SettlementTxHash,
	}
	for _, party := range parties {
		if party != nil {
			s.deliver(party.Email, name, withName(data, party))
		}
	}
}

func withName(data map[string]interface{}, profile *models.Profile) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["Username"] = profile.Username
	return out
}

// deliver renders and sends in the background. Failures are logged only.
func (s *NotificationService) deliver(to, name string, data map[string]interface{}) {
	if s == nil || s.mailer == nil {
		return
	}

	tmpl, ok := emailTemplates[name]
	if !ok {
		logrus.WithField("template", name).Error("Unknown email template")
		return
	}

	text, err := render(tmpl.Text, data)
	if err != nil {
		logrus.WithError(err).WithField("template", name).Error("Failed to render email")
		return
	}
	html, err := render(tmpl.HTML, data)
	if err != nil {
		logrus.WithError(err).WithField("template", name).Error("Failed to render email")
		return
	}

	go func() {
		if err := s.mailer.Send(to, tmpl.Subject, text, html); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"to":       to,
				"template": name,
			}).Warn("Email delivery failed")
		}
	}()
}

type executor interface {
	Execute(w io.Writer, data interface{}) error
}

func render(tmpl executor, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func newEmailTemplate(subject, text, html string) emailTemplate {
	return emailTemplate{
		Subject: subject,
		Text:    texttemplate.Must(texttemplate.New("text").Parse(text)),
		HTML:    template.Must(template.New("html").Parse(html)),
	}
}

var emailTemplates = map[string]emailTemplate{
	"verification": newEmailTemplate(
		"Verify your CampusHub email",
		`Hi {{.Username}}, confirm your email address: {{.VerificationURL}}`,
		`<!DOCTYPE html>
<html>
<body>
	<h2>Welcome {{.Username}}!</h2>
	<p>Please verify your email address by clicking the link below:</p>
	<a href="{{.VerificationURL}}">Verify Email</a>
	<p>The CampusHub Team</p>
</body>
</html>`,
	),
	"payment_completed": newEmailTemplate(
		"Payment received",
		`Hi {{.Username}}, your payment of {{.Amount}} {{.Currency}} for "{{.Title}}" is held in escrow.{{if .Sandbox}} (sandbox: no money moved){{end}}`,
		`<!DOCTYPE html>
<html>
<body>
	<h2>Payment received</h2>
	<p>Hi {{.Username}},</p>
	<p>Your {{.Method}} payment of {{.Amount}} {{.Currency}} for "{{.Title}}" is held in escrow until you release it.</p>
	{{if .Sandbox}}<p><strong>Sandbox payment: no money was moved.</strong></p>{{end}}
	<p>Reference: {{.PaymentID}}</p>
</body>
</html>`,
	),
	"sale_completed": newEmailTemplate(
		"You have a buyer",
		`Hi {{.Username}}, a buyer paid {{.Amount}} {{.Currency}} for "{{.Title}}". Funds are held in escrow.`,
		`<!DOCTYPE html>
<html>
<body>
	<h2>You have a buyer</h2>
	<p>Hi {{.Username}},</p>
	<p>A buyer paid {{.Amount}} {{.Currency}} for "{{.Title}}". The funds are held in escrow until the buyer confirms.</p>
	<p>Reference: {{.PaymentID}}</p>
</body>
</html>`,
	),
	"escrow_released": newEmailTemplate(
		"Escrow released",
		`Hi {{.Username}}, escrow for "{{.Title}}" ({{.Amount}} {{.Currency}}) was released to the seller.`,
		`<!DOCTYPE html>
<html>
<body>
	<h2>Escrow released</h2>
	<p>Hi {{.Username}},</p>
	<p>The escrow for "{{.Title}}" ({{.Amount}} {{.Currency}}) was released to the seller.</p>
	{{if .TxHash}}<p>Transaction: {{.TxHash}}</p>{{end}}
</body>
</html>`,
	),
	"escrow_refunded": newEmailTemplate(
		"Escrow refunded",
		`Hi {{.Username}}, escrow for "{{.Title}}" ({{.Amount}} {{.Currency}}) was refunded to the buyer.`,
		`<!DOCTYPE html>
<html>
<body>
	<h2>Escrow refunded</h2>
	<p>Hi {{.Username}},</p>
	<p>The escrow for "{{.Title}}" ({{.Amount}} {{.Currency}}) was refunded to the buyer.</p>
	{{if .TxHash}}<p>Transaction: {{.TxHash}}</p>{{end}}
</body>
</html>`,
	),
}
