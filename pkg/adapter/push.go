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
)

// PushConfig points the push adapter at an HTTP push gateway.
type PushConfig struct {
	APIURL  string        `env:"PUSH_API_URL,required"`
	APIKey  string        `env:"PUSH_API_KEY,required"`
	Timeout time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
}

// PushClient delivers notifications to a mobile push gateway over HTTP.
type PushClient struct {
	httpClient *http.Client
	directory  Directory
	config     PushConfig
}

func NewPushClient(cfg PushConfig, directory Directory) (*PushClient, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: push api url and key are required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushClient{
		httpClient: &http.Client{Timeout: timeout},
		directory:  directory,
		config:     cfg,
	}, nil
}

func (c *PushClient) Channel() notification.Channel {
	return notification.ChannelPush
}

type pushRequest struct {
	DeviceToken string `json:"device_token"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	CollapseKey string `json:"collapse_key,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (c *PushClient) Deliver(ctx context.Context, msg Message) (Receipt, error) {
	contact, err := c.directory.Lookup(ctx, msg.RecipientID)
	if err != nil {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	if contact.PushToken == "" {
		return Receipt{}, Terminal(ErrNoContactEndpoint)
	}

	payload, err := json.Marshal(pushRequest{
		DeviceToken: contact.PushToken,
		Title:       msg.Title,
		Body:        msg.Body,
		CollapseKey: msg.IdempotencyKey,
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

	var body pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}

	return receiptFromStatus(resp.StatusCode, body.MessageID, body.Error)
}
