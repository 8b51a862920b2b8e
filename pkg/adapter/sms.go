package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/sanitizer"
)

// smsMaxRunes caps the message at three concatenated GSM segments.
const smsMaxRunes = 480

// SMSConfig points the sms adapter at an HTTP messaging vendor.
type SMSConfig struct {
	APIURL     string        `env:"SMS_API_URL,required"`
	APIKey     string        `env:"SMS_API_KEY,required"`
	SenderName string        `env:"SMS_SENDER_NAME" envDefault:"notify"`
	Timeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
}

// SMSClient delivers notifications through a JSON-over-HTTP sms vendor.
// The vendor's dedup key field receives the message idempotency key so a
// redelivered job does not double-text the user.
type SMSClient struct {
	httpClient *http.Client
	directory  Directory
	config     SMSConfig
}

func NewSMSClient(cfg SMSConfig, directory Directory) (*SMSClient, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: sms api url and key are required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSClient{
		httpClient: &http.Client{Timeout: timeout},
		directory:  directory,
		config:     cfg,
	}, nil
}

func (c *SMSClient) Channel() notification.Channel {
	return notification.ChannelSMS
}

type smsRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Text     string `json:"text"`
	DedupKey string `json:"dedup_key,omitempty"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (c *SMSClient) Deliver(ctx context.Context, msg Message) (Receipt, error) {
	contact, err := c.directory.Lookup(ctx, msg.RecipientID)
	if err != nil {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	if contact.Phone == "" {
		return Receipt{}, Terminal(ErrNoContactEndpoint)
	}

	payload, err := json.Marshal(smsRequest{
		From:     c.config.SenderName,
		To:       sanitizer.KeepDigits(contact.Phone),
		Text:     sanitizer.MaxLength(sanitizer.SingleLine(msg.Body), smsMaxRunes),
		DedupKey: msg.IdempotencyKey,
	})
	if err != nil {
		return Receipt{}, Terminal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, Terminal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var body smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}

	return receiptFromStatus(resp.StatusCode, body.MessageID, body.Error)
}

// receiptFromStatus maps vendor HTTP status codes onto retry semantics:
// 2xx succeeds, 429 and 5xx are retryable, every other 4xx means the
// request itself is wrong and will never succeed.
func receiptFromStatus(status int, providerRef, vendorErr string) (Receipt, error) {
	switch {
	case status >= 200 && status < 300:
		return Receipt{ProviderRef: providerRef}, nil
	case status == http.StatusTooManyRequests || status >= 500:
		return Receipt{}, errors.Join(ErrFailedToDeliver, fmt.Errorf("vendor status %d: %s", status, vendorErr))
	default:
		return Receipt{}, Terminal(errors.Join(ErrRecipientRejected, fmt.Errorf("vendor status %d: %s", status, vendorErr)))
	}
}
