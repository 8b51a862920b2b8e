package adapter

import (
	"context"
	"errors"

	"github.com/dmitrymomot/notifyhub/pkg/notification"
)

// InApp is the adapter for the in-app feed channel. The feed row is
// written at ingestion time, so delivery only confirms the row exists and
// reports success. It never fails for preference or endpoint reasons:
// every user has a feed.
type InApp struct {
	storage notification.Storage
}

func NewInApp(storage notification.Storage) *InApp {
	return &InApp{storage: storage}
}

func (a *InApp) Channel() notification.Channel {
	return notification.ChannelInApp
}

func (a *InApp) Deliver(ctx context.Context, msg Message) (Receipt, error) {
	_, err := a.storage.Get(ctx, msg.RecipientID, msg.NotificationID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return Receipt{}, Terminal(err)
		}
		return Receipt{}, errors.Join(ErrFailedToDeliver, err)
	}
	return Receipt{ProviderRef: msg.NotificationID}, nil
}
