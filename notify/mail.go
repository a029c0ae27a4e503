package notify

import (
	"context"
	"fmt"

	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/metrics"
	"github.com/kasuganosora/hangout/model"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// sender is the part of *gomail.Dialer the mailer uses.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer emails notices to users that have an address on file.
type Mailer struct {
	db     *gorm.DB
	dialer sender
	from   string
}

// NewMailer creates a Mailer from the SMTP settings.
func NewMailer(db *gorm.DB, cfg config.NotifyConfig) *Mailer {
	return &Mailer{
		db:     db,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.From,
	}
}

func (m *Mailer) Notify(ctx context.Context, n Notice) error {
	var user model.User
	if err := m.db.WithContext(ctx).Select("id", "email").First(&user, n.UserID).Error; err != nil {
		return fmt.Errorf("notify: load user %d: %w", n.UserID, err)
	}
	if user.Email == "" {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", user.Email)
	msg.SetHeader("Subject", n.Subject)
	msg.SetBody("text/plain", n.Body)

	err := m.dialer.DialAndSend(msg)
	metrics.NotificationsSent.WithLabelValues("email", metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}
