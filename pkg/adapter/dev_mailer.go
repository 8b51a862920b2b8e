package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// DevMailer implements the mail adapter for local development. Instead of
// calling Postmark it writes each message as a JSON file into a directory,
// so developers can inspect what would have been sent.
type DevMailer struct {
	dir       string
	directory Directory
}

func NewDevMailer(dir string, directory Directory) *DevMailer {
	return &DevMailer{dir: dir, directory: directory}
}

func (m *DevMailer) Channel() notification.Channel {
	return notification.ChannelMail
}

type devMailFile struct {
	Timestamp      string `json:"timestamp"`
	NotificationID string `json:"notification_id"`
	SendTo         string `json:"send_to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	Category       string `json:"category"`
}

func (m *DevMailer) Deliver(ctx context.Context, msg Message) (Receipt, error) {
	contact, err := m.directory.Lookup(ctx, msg.RecipientID)
	if err != nil {
		return Receipt{}, err
	}
	if contact.Email == "" {
		return Receipt{}, Terminal(ErrNoContactEndpoint)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Receipt{}, fmt.Errorf("create dev mail directory: %w", err)
	}

	now := time.Now()
	data, err := json.MarshalIndent(devMailFile{
		Timestamp:      now.Format(time.RFC3339),
		NotificationID: msg.NotificationID,
		SendTo:         contact.Email,
		Subject:        msg.Subject,
		Body:           msg.Body,
		Category:       string(msg.Category),
	}, "", "  ")
	if err != nil {
		return Receipt{}, err
	}

	ref := "dev-" + uuid.New().String()
	path := filepath.Join(m.dir, fmt.Sprintf("%s_%s.json", now.Format("2006_01_02_150405"), ref))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("write dev mail file: %w", err)
	}
	return Receipt{ProviderRef: ref}, nil
}
