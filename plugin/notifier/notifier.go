// Package notifier delivers triggered reminders to their destinations.
package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nagbot/nagbot/store"
)

// Channel names a delivery mechanism.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelLog     Channel = "log"
)

// Destination is where a reminder gets delivered. Target is
// channel-specific: a URL override for webhooks, unused for the log channel.
type Destination struct {
	Channel Channel `json:"channel"`
	Target  string  `json:"target,omitempty"`
}

// ParseDestination decodes a stored destination. An empty destination
// defaults to the log channel.
func ParseDestination(raw string) (Destination, error) {
	if raw == "" {
		return Destination{Channel: ChannelLog}, nil
	}
	var d Destination
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Destination{}, errors.Wrap(err, "failed to unmarshal destination")
	}
	if d.Channel == "" {
		d.Channel = ChannelLog
	}
	return d, nil
}

// Encode serializes the destination for storage.
func (d Destination) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal destination")
	}
	return string(b), nil
}

// Notification is the payload handed to a sender when a reminder fires.
type Notification struct {
	Owner       string                     `json:"owner"`
	ReminderUID string                     `json:"reminder_uid"`
	Text        string                     `json:"text"`
	DueLocal    string                     `json:"due_local"`
	Timezone    string                     `json:"timezone"`
	Recurrence  store.RecurrenceInterval   `json:"recurrence"`
	Target      string                     `json:"-"`
	FiredAt     time.Time                  `json:"fired_at"`
}

// Notifier sends one notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// Dispatcher routes notifications to the sender registered for their
// destination channel.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[Channel]Notifier
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[Channel]Notifier)}
}

// Register registers a sender for a channel, replacing any previous one.
func (d *Dispatcher) Register(channel Channel, sender Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[channel] = sender
}

// Dispatch decodes the reminder's destination and hands the notification to
// the matching sender.
func (d *Dispatcher) Dispatch(ctx context.Context, reminder *store.Reminder, firedAt time.Time) error {
	dest, err := ParseDestination(reminder.Destination)
	if err != nil {
		return err
	}

	d.mu.RLock()
	sender, ok := d.senders[dest.Channel]
	d.mu.RUnlock()
	if !ok {
		return errors.Errorf("no sender registered for channel %q", dest.Channel)
	}

	return sender.Send(ctx, Notification{
		Owner:       reminder.Owner,
		ReminderUID: reminder.UID,
		Text:        reminder.Text,
		DueLocal:    reminder.DueLocal,
		Timezone:    reminder.Timezone,
		Recurrence:  reminder.Recurrence,
		Target:      dest.Target,
		FiredAt:     firedAt,
	})
}
