package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/authkeep/authserver/types"
)

// ChannelAccountRegistered carries types.AccountRegistered events.
const ChannelAccountRegistered = "account.registered"

// Message attribute keys.
const (
	AttrEventType   = "event_type"
	AttrContentType = "content_type"
)

// PublishAccountRegistered publishes a registration event for account.
func (m *MQ) PublishAccountRegistered(ctx context.Context, account types.Account) (string, error) {
	data, err := json.Marshal(types.AccountRegistered{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return m.Publish(ctx, ChannelAccountRegistered, data, map[string]string{
		AttrEventType:   ChannelAccountRegistered,
		AttrContentType: "application/json",
	})
}

// ConsumeAccountRegistered decodes registration events and hands them to fn
// until ctx is done. Undecodable messages are rejected without retry.
func (m *MQ) ConsumeAccountRegistered(ctx context.Context, fn func(ctx context.Context, event types.AccountRegistered) error) error {
	return m.Subscribe(ctx, ChannelAccountRegistered, func(ctx context.Context, msg Message) error {
		var event types.AccountRegistered
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}
