// Package scheduler runs the durable per-reminder scheduling workflow: wait
// until the due instant, deliver, then retire one-shot reminders or advance
// recurring ones to their next occurrence.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/nagbot/nagbot/internal/errors"
	"github.com/nagbot/nagbot/server/timezone"
	"github.com/nagbot/nagbot/server/trigger"
	"github.com/nagbot/nagbot/store"
)

// ReminderStore is the slice of the store the workflow needs.
type ReminderStore interface {
	GetReminder(ctx context.Context, owner, uid string) (*store.Reminder, error)
	ListReminders(ctx context.Context, owner string) ([]*store.Reminder, error)
	UpsertReminder(ctx context.Context, upsert *store.Reminder) (*store.Reminder, error)
	DeleteReminder(ctx context.Context, owner, uid string) error

	GetWorkflowTimer(ctx context.Context, owner, reminderUID string) (*store.WorkflowTimer, error)
	UpsertWorkflowTimer(ctx context.Context, upsert *store.WorkflowTimer) (*store.WorkflowTimer, error)
	ListWorkflowTimers(ctx context.Context, find *store.FindWorkflowTimer) ([]*store.WorkflowTimer, error)
	DeleteWorkflowTimer(ctx context.Context, owner, reminderUID string) error
}

// Deliverer hands a due reminder to its destination.
type Deliverer interface {
	Dispatch(ctx context.Context, reminder *store.Reminder, firedAt time.Time) error
}

// TriggerPublisher re-announces a reminder for its next occurrence.
type TriggerPublisher interface {
	Publish(signal trigger.Signal) error
}

// Config holds scheduler configuration. The retry policy defaults to the
// delivery contract: 5 attempts, fixed interval, 1 minute apart.
type Config struct {
	RetryAttempts uint
	RetryDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryAttempts: 5,
		RetryDelay:    time.Minute,
	}
}

// Scheduler is the workflow host. One instance serves all reminders; each
// occurrence runs as an independent invocation keyed by (owner, uid).
type Scheduler struct {
	store     ReminderStore
	deliverer Deliverer
	publisher TriggerPublisher
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	queue    *wakeQueue
	inFlight map[string]struct{}
	kick     chan struct{}
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(st ReminderStore, deliverer Deliverer, publisher TriggerPublisher, config Config, logger *slog.Logger) *Scheduler {
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     st,
		deliverer: deliverer,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
		queue:     newWakeQueue(),
		inFlight:  make(map[string]struct{}),
		kick:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start rehydrates persisted wait checkpoints, sweeps for reminders that
// never got one, and begins the wake loop. Checkpoints whose fire time
// already passed fire immediately, so deliveries pending across a restart are
// not lost.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	timers, err := s.store.ListWorkflowTimers(ctx, nil)
	if err != nil {
		return errors.StoreUnavailable("failed to list workflow timers", err)
	}

	s.mu.Lock()
	for _, t := range timers {
		s.queue.Schedule(t.Owner, t.ReminderUID, time.Unix(t.FireAt, 0))
	}
	s.mu.Unlock()

	// A reminder persisted right before a crash may have no checkpoint yet
	// because its trigger signal was lost with the process. Scheduling is
	// idempotent, so sweeping every record is safe.
	swept, err := s.sweepUnscheduled(ctx)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("reminder scheduler started",
		"rehydrated_timers", len(timers), "swept_reminders", swept)
	return nil
}

func (s *Scheduler) sweepUnscheduled(ctx context.Context) (int, error) {
	reminders, err := s.store.ListReminders(ctx, "")
	if err != nil {
		return 0, errors.StoreUnavailable("failed to list reminders", err)
	}

	swept := 0
	for _, r := range reminders {
		s.mu.Lock()
		queued := s.queue.Contains(r.Owner, r.UID)
		s.mu.Unlock()
		if queued {
			continue
		}
		if err := s.schedule(ctx, r.Owner, r.UID); err != nil {
			s.logger.Error("failed to schedule reminder during sweep",
				"owner", r.Owner, "reminder_uid", r.UID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

// Stop stops the wake loop. In-flight deliveries finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("reminder scheduler stopped")
}

// HandleSignal is the trigger-bus entry point. It is idempotent: repeated
// signals for a reminder already waiting are a no-op, and a returned error
// means the signal should be redelivered.
func (s *Scheduler) HandleSignal(ctx context.Context, signal trigger.Signal) error {
	return s.schedule(ctx, signal.Owner, signal.ReminderUID)
}

// schedule runs the Scheduled state: fetch, resolve the due instant, persist
// the wait checkpoint, and enqueue the wake.
func (s *Scheduler) schedule(ctx context.Context, owner, uid string) error {
	// A popped wake is no longer queued but its invocation may still be
	// delivering; until fire completes the reminder counts as pending, or a
	// duplicate signal would re-enqueue the same occurrence.
	s.mu.Lock()
	_, firing := s.inFlight[wakeKey(owner, uid)]
	pending := firing || s.queue.Contains(owner, uid)
	s.mu.Unlock()
	if pending {
		return nil
	}

	existing, err := s.store.GetWorkflowTimer(ctx, owner, uid)
	if err != nil {
		return errors.StoreUnavailable("failed to read workflow timer", err)
	}
	if existing != nil {
		// Checkpoint already persisted by an earlier invocation; just make
		// sure it is queued.
		s.enqueue(owner, uid, time.Unix(existing.FireAt, 0))
		return nil
	}

	reminder, err := s.store.GetReminder(ctx, owner, uid)
	if err != nil {
		return errors.StoreUnavailable("failed to read reminder", err)
	}
	if reminder == nil {
		// Deleted before scheduling began.
		return nil
	}

	due, ok := s.resolveDueInstant(reminder)
	if !ok {
		// Unusable record. Logged for operator remediation; retrying the
		// signal cannot fix it.
		return nil
	}
	if !due.After(s.now()) {
		s.logger.Info("reminder already elapsed, not scheduling",
			"owner", owner, "reminder_uid", uid, "due_local", reminder.DueLocal)
		return nil
	}

	if _, err := s.store.UpsertWorkflowTimer(ctx, &store.WorkflowTimer{
		Owner:       owner,
		ReminderUID: uid,
		FireAt:      due.Unix(),
		CreatedTs:   s.now().Unix(),
	}); err != nil {
		return errors.StoreUnavailable("failed to persist wait checkpoint", err)
	}

	s.enqueue(owner, uid, due)
	s.logger.Debug("reminder waiting", "owner", owner, "reminder_uid", uid, "fire_at", due)
	return nil
}

// resolveDueInstant interprets the stored wall-clock due time in the record's
// timezone. Ambiguous local times resolve to the earlier UTC instant; skipped
// local times resolve forward past the gap.
func (s *Scheduler) resolveDueInstant(reminder *store.Reminder) (time.Time, bool) {
	wall, err := reminder.DueLocalTime()
	if err != nil {
		s.logRecordFault(reminder, errors.BadRecord("unparseable due time", err))
		return time.Time{}, false
	}
	loc, err := timezone.ParseTimezone(reminder.Timezone)
	if err != nil {
		s.logRecordFault(reminder, errors.BadRecord("unknown timezone", err))
		return time.Time{}, false
	}
	return timezone.ResolveLocalTime(wall, loc), true
}

func (s *Scheduler) logRecordFault(reminder *store.Reminder, err error) {
	s.logger.Error("reminder record is unusable",
		"owner", reminder.Owner,
		"reminder_uid", reminder.UID,
		"due_local", reminder.DueLocal,
		"timezone", reminder.Timezone,
		"error", err,
	)
}

func (s *Scheduler) clearInFlight(owner, uid string) {
	s.mu.Lock()
	delete(s.inFlight, wakeKey(owner, uid))
	s.mu.Unlock()
}

func (s *Scheduler) enqueue(owner, uid string, fireAt time.Time) {
	s.mu.Lock()
	s.queue.Schedule(owner, uid, fireAt)
	s.mu.Unlock()
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// run waits for the earliest pending wake and fires due ones. Each fired
// wake runs in its own goroutine; instances share nothing but the store.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		var wait time.Duration
		if head := s.queue.Peek(); head != nil {
			wait = head.fireAt.Sub(s.now())
		} else {
			wait = time.Hour
		}
		s.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.stopCh:
				timer.Stop()
				return
			case <-s.kick:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		due := s.queue.PopDue(s.now())
		for _, w := range due {
			s.inFlight[wakeKey(w.owner, w.reminderUID)] = struct{}{}
		}
		s.mu.Unlock()

		for _, w := range due {
			s.wg.Add(1)
			go func(w *wake) {
				defer s.wg.Done()
				defer s.clearInFlight(w.owner, w.reminderUID)
				s.fire(ctx, w.owner, w.reminderUID, w.fireAt)
			}(w)
		}
	}
}

// fire runs the Delivering state and then retires or reschedules the record.
func (s *Scheduler) fire(ctx context.Context, owner, uid string, firedAt time.Time) {
	reminder, err := s.store.GetReminder(ctx, owner, uid)
	if err != nil {
		// The persisted checkpoint survives, so the wake is retried on the
		// next restart rather than lost.
		s.logger.Error("failed to re-fetch reminder for delivery",
			"owner", owner, "reminder_uid", uid, "error", err)
		return
	}
	if reminder == nil {
		// Deleted while waiting.
		if err := s.store.DeleteWorkflowTimer(ctx, owner, uid); err != nil {
			s.logger.Error("failed to drop orphaned workflow timer",
				"owner", owner, "reminder_uid", uid, "error", err)
		}
		return
	}

	// A record already advanced past this wake was delivered by a previous
	// invocation; consuming the stale checkpoint re-enters scheduling
	// without delivering twice.
	if due, ok := s.resolveDueInstant(reminder); ok && due.After(firedAt) {
		if err := s.store.DeleteWorkflowTimer(ctx, owner, uid); err != nil {
			s.logger.Error("failed to drop stale workflow timer",
				"owner", owner, "reminder_uid", uid, "error", err)
			return
		}
		s.republish(owner, uid)
		return
	}

	s.deliver(ctx, reminder, firedAt)

	if reminder.Recurrence == store.RecurrenceNone {
		s.retire(ctx, reminder)
		return
	}
	s.reschedule(ctx, reminder)
}

// deliver invokes the delivery adapter with bounded retry. Exhaustion is
// logged and the workflow continues; a missed notification never breaks the
// recurrence chain.
func (s *Scheduler) deliver(ctx context.Context, reminder *store.Reminder, firedAt time.Time) {
	err := retry.Do(
		func() error {
			return s.deliverer.Dispatch(ctx, reminder, firedAt)
		},
		retry.Context(ctx),
		retry.Attempts(s.config.RetryAttempts),
		retry.Delay(s.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("reminder delivery failed, retrying",
				"owner", reminder.Owner,
				"reminder_uid", reminder.UID,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
	if err != nil {
		s.logger.Error("reminder delivery exhausted retries",
			"owner", reminder.Owner,
			"reminder_uid", reminder.UID,
			"error", errors.DeliveryFailed("delivery retries exhausted", err),
		)
		return
	}
	s.logger.Info("reminder delivered",
		"owner", reminder.Owner, "reminder_uid", reminder.UID, "text", reminder.Text)
}

// retire removes a one-shot reminder after delivery.
func (s *Scheduler) retire(ctx context.Context, reminder *store.Reminder) {
	if err := s.store.DeleteReminder(ctx, reminder.Owner, reminder.UID); err != nil {
		s.logger.Error("failed to retire reminder",
			"owner", reminder.Owner, "reminder_uid", reminder.UID, "error", err)
		return
	}
	if err := s.store.DeleteWorkflowTimer(ctx, reminder.Owner, reminder.UID); err != nil {
		s.logger.Error("failed to drop workflow timer",
			"owner", reminder.Owner, "reminder_uid", reminder.UID, "error", err)
	}
}

// reschedule advances a recurring reminder's due time by one unit and
// re-enters scheduling as a fresh invocation for the next occurrence.
func (s *Scheduler) reschedule(ctx context.Context, reminder *store.Reminder) {
	wall, err := reminder.DueLocalTime()
	if err != nil {
		s.logRecordFault(reminder, errors.BadRecord("unparseable due time", err))
		return
	}
	reminder.DueLocal = store.FormatDueLocal(reminder.Recurrence.Advance(wall))
	reminder.UpdatedTs = s.now().Unix()

	// Advance first: once the record moves forward, a redundant wake for the
	// consumed occurrence cannot deliver again.
	if _, err := s.store.UpsertReminder(ctx, reminder); err != nil {
		s.logger.Error("failed to advance recurring reminder",
			"owner", reminder.Owner, "reminder_uid", reminder.UID, "error", err)
		return
	}
	if err := s.store.DeleteWorkflowTimer(ctx, reminder.Owner, reminder.UID); err != nil {
		s.logger.Error("failed to drop workflow timer",
			"owner", reminder.Owner, "reminder_uid", reminder.UID, "error", err)
		return
	}
	s.republish(reminder.Owner, reminder.UID)
}

func (s *Scheduler) republish(owner, uid string) {
	if err := s.publisher.Publish(trigger.Signal{Owner: owner, ReminderUID: uid}); err != nil {
		s.logger.Error("failed to publish reschedule signal",
			"owner", owner, "reminder_uid", uid, "error", err)
	}
}
