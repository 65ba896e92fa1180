package notifier

import (
	"context"
	"log/slog"
)

// LogSender writes triggered reminders to the structured log. It is the
// default channel when no outbound delivery is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string {
	return "log"
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("reminder triggered",
		"owner", n.Owner,
		"reminder_uid", n.ReminderUID,
		"text", n.Text,
		"due_local", n.DueLocal,
		"timezone", n.Timezone,
		"recurrence", string(n.Recurrence),
	)
	return nil
}
