package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/nagbot/nagbot/plugin/notifier"
	"github.com/nagbot/nagbot/plugin/recognizer"
	"github.com/nagbot/nagbot/server/internal/observability"
	"github.com/nagbot/nagbot/server/timezone"
	"github.com/nagbot/nagbot/server/trigger"
	"github.com/nagbot/nagbot/store"
)

// ownerHeader carries the caller identity. Deployments front this API with
// their own auth and inject the header.
const ownerHeader = "X-Owner"

func ownerKey(c echo.Context) string {
	if owner := c.Request().Header.Get(ownerHeader); owner != "" {
		return owner
	}
	return c.RealIP()
}

// CreateReminderRequest is the recognition input.
type CreateReminderRequest struct {
	Text     string `json:"text"`
	Locale   string `json:"locale"`
	Timezone string `json:"timezone"`
	// Reference optionally overrides "now" as the recognition anchor,
	// RFC 3339.
	Reference   string                `json:"reference,omitempty"`
	Destination *notifier.Destination `json:"destination,omitempty"`
}

// ReminderResponse is the wire shape of a persisted reminder.
type ReminderResponse struct {
	UID        string `json:"uid"`
	Text       string `json:"text"`
	DueLocal   string `json:"due_local"`
	Timezone   string `json:"timezone"`
	Recurrence string `json:"recurrence"`
	CreatedTs  int64  `json:"created_ts"`
}

func toReminderResponse(r *store.Reminder) *ReminderResponse {
	return &ReminderResponse{
		UID:        r.UID,
		Text:       r.Text,
		DueLocal:   r.DueLocal,
		Timezone:   r.Timezone,
		Recurrence: string(r.Recurrence),
		CreatedTs:  r.CreatedTs,
	}
}

// CreateReminder recognizes the text and persists the resulting reminder.
// Unrecognizable text is a 422, not a server fault.
func (s *APIV1Service) CreateReminder(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerKey(c)

	var req CreateReminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	locale := req.Locale
	if locale == "" {
		locale = s.Profile.DefaultLocale
	}
	tzName := req.Timezone
	if tzName == "" {
		tzName = s.Profile.DefaultTimezone
	}
	loc, err := timezone.ParseTimezone(tzName)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown timezone")
	}

	reference := time.Now().In(loc)
	if req.Reference != "" {
		parsed, err := time.Parse(time.RFC3339, req.Reference)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "reference must be RFC 3339")
		}
		reference = parsed.In(loc)
	}

	result, err := s.Engine.Recognize(ctx, recognizer.Request{
		Text:      req.Text,
		Reference: reference,
		Locale:    locale,
	})
	if err != nil {
		if recognizer.IsUnrecognized(err) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "could not understand the reminder text")
		}
		s.logger.Error("recognition misconfigured", "locale", locale, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "recognition unavailable")
	}

	destination := ""
	if req.Destination != nil {
		destination, err = req.Destination.Encode()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid destination")
		}
	}

	now := time.Now().Unix()
	reminder, err := s.Store.UpsertReminder(ctx, &store.Reminder{
		Owner:       owner,
		UID:         shortuuid.New(),
		Text:        result.Text,
		DueLocal:    store.FormatDueLocal(result.DueLocal),
		Timezone:    tzName,
		Recurrence:  result.Recurrence,
		Destination: destination,
		CreatedTs:   now,
		UpdatedTs:   now,
	})
	if err != nil {
		s.logger.Error("failed to persist reminder", "owner", owner, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save reminder")
	}

	if reqCtx, ok := observability.FromContext(ctx); ok {
		reqCtx.Info("reminder recognized",
			slog.String(observability.LogFieldLocale, locale),
			slog.String(observability.LogFieldReminderUID, reminder.UID),
			slog.String("due_local", reminder.DueLocal),
			slog.String("recurrence", string(reminder.Recurrence)),
		)
	}

	if err := s.Publisher.Publish(trigger.Signal{Owner: owner, ReminderUID: reminder.UID}); err != nil {
		// The record is saved; the scheduler's startup sweep picks up
		// checkpoint-less reminders even if this announcement is lost.
		s.logger.Error("failed to announce reminder",
			"owner", owner, "reminder_uid", reminder.UID, "error", err)
	}

	return c.JSON(http.StatusCreated, toReminderResponse(reminder))
}

// ListReminders returns the caller's reminders.
func (s *APIV1Service) ListReminders(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerKey(c)

	reminders, err := s.Store.ListReminders(ctx, owner)
	if err != nil {
		s.logger.Error("failed to list reminders", "owner", owner, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list reminders")
	}

	out := make([]*ReminderResponse, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, toReminderResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

// GetReminder returns one reminder by uid.
func (s *APIV1Service) GetReminder(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerKey(c)

	reminder, err := s.Store.GetReminder(ctx, owner, c.Param("uid"))
	if err != nil {
		s.logger.Error("failed to get reminder", "owner", owner, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get reminder")
	}
	if reminder == nil {
		return echo.NewHTTPError(http.StatusNotFound, "reminder not found")
	}
	return c.JSON(http.StatusOK, toReminderResponse(reminder))
}

// DeleteReminder removes a reminder. The running workflow observes deletion
// at its next fetch point; deleting an absent reminder succeeds.
func (s *APIV1Service) DeleteReminder(c echo.Context) error {
	ctx := c.Request().Context()
	owner := ownerKey(c)

	if err := s.Store.DeleteReminder(ctx, owner, c.Param("uid")); err != nil {
		s.logger.Error("failed to delete reminder", "owner", owner, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete reminder")
	}
	return c.NoContent(http.StatusNoContent)
}
