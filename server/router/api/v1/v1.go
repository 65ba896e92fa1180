// Package v1 exposes the reminder API over HTTP.
package v1

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nagbot/nagbot/internal/profile"
	"github.com/nagbot/nagbot/plugin/recognizer"
	"github.com/nagbot/nagbot/server/internal/observability"
	"github.com/nagbot/nagbot/server/middleware"
	"github.com/nagbot/nagbot/server/trigger"
	"github.com/nagbot/nagbot/store"
)

// ReminderStore is the slice of the store the API needs.
type ReminderStore interface {
	GetReminder(ctx context.Context, owner, uid string) (*store.Reminder, error)
	ListReminders(ctx context.Context, owner string) ([]*store.Reminder, error)
	UpsertReminder(ctx context.Context, upsert *store.Reminder) (*store.Reminder, error)
	DeleteReminder(ctx context.Context, owner, uid string) error
}

// TriggerPublisher announces newly persisted reminders to the workflow.
type TriggerPublisher interface {
	Publish(signal trigger.Signal) error
}

type APIV1Service struct {
	Profile   *profile.Profile
	Store     ReminderStore
	Engine    *recognizer.Engine
	Publisher TriggerPublisher

	logger  *slog.Logger
	limiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, st ReminderStore, engine *recognizer.Engine, publisher TriggerPublisher, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{
		Profile:   profile,
		Store:     st,
		Engine:    engine,
		Publisher: publisher,
		logger:    logger,
		limiter:   middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.Use(echomw.Recover())
	group := e.Group("/api/v1",
		middleware.RateLimitMiddleware(s.limiter, ownerKey),
		s.requestLogger,
	)

	group.POST("/reminders", s.CreateReminder)
	group.GET("/reminders", s.ListReminders)
	group.GET("/reminders/:uid", s.GetReminder)
	group.DELETE("/reminders/:uid", s.DeleteReminder)
}

// requestLogger attaches a per-request logging context and records the
// request outcome with its duration.
func (s *APIV1Service) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqCtx := observability.NewRequestContext(s.logger, ownerKey(c))
		c.SetRequest(c.Request().WithContext(
			observability.WithRequestContext(c.Request().Context(), reqCtx)))

		err := next(c)

		attrs := []slog.Attr{
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		}
		if err != nil {
			reqCtx.Error("request failed", err, attrs...)
			return err
		}
		reqCtx.Debug("request completed", attrs...)
		return nil
	}
}
