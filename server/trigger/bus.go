// Package trigger carries "reminder created" signals from the API surface to
// the scheduling workflow.
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

// TopicReminderCreated is the topic a new or rescheduled reminder is
// announced on.
const TopicReminderCreated = "reminder.created"

// Signal identifies one reminder occurrence to schedule. Delivery is
// at-least-once; consumers must tolerate duplicates.
type Signal struct {
	Owner       string `json:"owner"`
	ReminderUID string `json:"reminder_uid"`
}

// Bus is an in-process publish/subscribe channel for workflow signals.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

// Publish announces a reminder occurrence.
func (b *Bus) Publish(signal Signal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return errors.Wrap(err, "failed to marshal trigger signal")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(TopicReminderCreated, msg); err != nil {
		return errors.Wrap(err, "failed to publish trigger signal")
	}
	return nil
}

// Subscribe consumes signals until ctx is canceled, invoking handler for each
// one. A handler error nacks the message so it is redelivered; handlers must
// therefore be idempotent.
func (b *Bus) Subscribe(ctx context.Context, handler func(Signal) error) error {
	messages, err := b.pubsub.Subscribe(ctx, TopicReminderCreated)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to trigger topic")
	}

	go func() {
		for msg := range messages {
			var signal Signal
			if err := json.Unmarshal(msg.Payload, &signal); err != nil {
				b.logger.Error("dropping malformed trigger signal", "error", err)
				msg.Ack()
				continue
			}
			if err := handler(signal); err != nil {
				b.logger.Warn("trigger handler failed, message will be redelivered",
					"owner", signal.Owner,
					"reminder_uid", signal.ReminderUID,
					"error", err,
				)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close shuts the bus down. Pending messages are dropped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
