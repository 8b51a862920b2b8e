package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// MailConfig holds the Postmark credentials and sender identity.
// Tokens are optional so development environments can run the dev mailer
// instead.
type MailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	ReplyToEmail         string `env:"REPLY_TO_EMAIL"`
}

// postmarkSender is the subset of the Postmark client the mailer uses,
// extracted so tests can substitute a fake.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Mailer delivers notifications over transactional email via Postmark.
type Mailer struct {
	client    postmarkSender
	directory Directory
	config    MailConfig
}

// NewMailer creates a Postmark-backed mail adapter.
func NewMailer(cfg MailConfig, directory Directory) (*Mailer, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: contact directory is required", ErrInvalidConfig)
	}
	return &Mailer{
		client:    postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		directory: directory,
		config:    cfg,
	}, nil
}

func (m *Mailer) Channel() notification.Channel {
	return notification.ChannelMail
}

// Deliver sends the message to the recipient's registered email address.
// Postmark's inactive-recipient and invalid-address error codes are
// terminal; transport failures are left retryable.
func (m *Mailer) Deliver(ctx context.Context, msg Message) (Receipt, error) {
	contact, err := m.directory.Lookup(ctx, msg.RecipientID)
	if err != nil {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	if contact.Email == "" {
		return Receipt{}, Terminal(ErrNoContactEndpoint)
	}

	resp, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.config.SenderEmail,
		ReplyTo:  m.config.ReplyToEmail,
		To:       contact.Email,
		Subject:  msg.Subject,
		TextBody: msg.Body,
		Tag:      string(msg.Category),
	})
	if err != nil {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	if resp.ErrorCode > 0 {
		err := fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
		if isTerminalPostmarkCode(resp.ErrorCode) {
			return Receipt{}, Terminal(errors.Join(ErrRecipientRejected, err))
		}
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	return Receipt{ProviderRef: resp.MessageID}, nil
}

// 300 is invalid email request, 406 is inactive recipient. Retrying either
// produces the same answer.
func isTerminalPostmarkCode(code int64) bool {
	return code == 300 || code == 406
}
