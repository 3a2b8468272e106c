// Package notify dispatches the SMS invite at session creation, via the
// carrier's email-to-SMS gateway.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/carrier"
	"github.com/support-eye/relay/internal/config"
	"github.com/support-eye/relay/internal/domain"
)

// Notifier sends the one-time session invite to the client's phone.
type Notifier interface {
	SendInvite(ctx context.Context, phone, gateway string, lang domain.Language, token string) error
}

// SMTPNotifier delivers through a plain SMTP relay. The recipient is
// <digits>@<carrier gateway>, which the carrier turns into a text.
type SMTPNotifier struct {
	cfg *config.Config
}

func NewSMTPNotifier(cfg *config.Config) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) SendInvite(ctx context.Context, phone, gateway string, lang domain.Language, token string) error {
	recipient := carrier.Clean(phone) + "@" + gateway
	msg := buildMessage(n.cfg.SMTP.From, recipient, inviteText(lang, n.cfg.SessionLinkBase, token))

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTP.Host, n.cfg.SMTP.Port)
	auth := smtp.PlainAuth("", n.cfg.SMTP.Username, n.cfg.SMTP.Password, n.cfg.SMTP.Host)

	if err := smtp.SendMail(addr, auth, n.cfg.SMTP.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	log.Info().Str("module", "notify").Str("recipient", recipient).Msg("invite sent")
	return nil
}

func inviteText(lang domain.Language, linkBase, token string) string {
	link := fmt.Sprintf("%s/?session=%s", linkBase, token)
	if lang == domain.LangFR {
		return "Support-Eye: Votre technicien vous attend. Cliquez ici: " + link
	}
	return "Support-Eye: Your technician is ready. Click here: " + link
}

func buildMessage(from, to, body string) []byte {
	return []byte("From: \"Support-Eye\" <" + from + ">\r\n" +
		"To: " + to + "\r\n" +
		"\r\n" +
		body + "\r\n")
}
