package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nagbot/nagbot/plugin/notifier"
	"github.com/nagbot/nagbot/server/trigger"
	"github.com/nagbot/nagbot/store"
)

type mockPublisher struct {
	mu      sync.Mutex
	signals []trigger.Signal
}

func (p *mockPublisher) Publish(signal trigger.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, signal)
	return nil
}

func (p *mockPublisher) Signals() []trigger.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]trigger.Signal{}, p.signals...)
}

type fixture struct {
	store     *MemoryStore
	sender    *notifier.MockSender
	publisher *mockPublisher
	scheduler *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := NewMemoryStore()
	sender := notifier.NewMockSender()
	dispatcher := notifier.NewDispatcher()
	dispatcher.Register(notifier.ChannelLog, sender)
	publisher := &mockPublisher{}
	sched := New(st, dispatcher, publisher, Config{
		RetryAttempts: 5,
		RetryDelay:    10 * time.Millisecond,
	}, nil)
	return &fixture{store: st, sender: sender, publisher: publisher, scheduler: sched}
}

func dueIn(d time.Duration) string {
	return store.FormatDueLocal(time.Now().UTC().Truncate(time.Second).Add(d))
}

func putReminder(t *testing.T, f *fixture, r *store.Reminder) {
	t.Helper()
	if r.Timezone == "" {
		r.Timezone = "UTC"
	}
	if r.Recurrence == "" {
		r.Recurrence = store.RecurrenceNone
	}
	_, err := f.store.UpsertReminder(context.Background(), r)
	require.NoError(t, err)
}

func TestSchedulerDeliversAndRetires(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "water plants", DueLocal: dueIn(2 * time.Second),
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))

	assert.Eventually(t, func() bool {
		return len(f.sender.Sent()) == 1
	}, 10*time.Second, 50*time.Millisecond, "expected one delivery")

	assert.Eventually(t, func() bool {
		r, _ := f.store.GetReminder(ctx, "alice", "r1")
		timer, _ := f.store.GetWorkflowTimer(ctx, "alice", "r1")
		return r == nil && timer == nil
	}, 5*time.Second, 50*time.Millisecond, "expected record and checkpoint retired")

	sent := f.sender.Sent()
	assert.Equal(t, "water plants", sent[0].Text)
}

func TestSchedulerDuplicateSignalsDeliverOnce(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "stand up", DueLocal: dueIn(2 * time.Second),
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()

	signal := trigger.Signal{Owner: "alice", ReminderUID: "r1"}
	require.NoError(t, f.scheduler.HandleSignal(ctx, signal))
	require.NoError(t, f.scheduler.HandleSignal(ctx, signal))
	require.NoError(t, f.scheduler.HandleSignal(ctx, signal))

	assert.Eventually(t, func() bool {
		return len(f.sender.Sent()) >= 1
	}, 10*time.Second, 50*time.Millisecond)

	// Give a redundant wake time to misbehave before asserting.
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, f.sender.Sent(), 1)
}

// slowDeliverer blocks inside Dispatch until released, so tests can overlap a
// duplicate signal with an in-progress delivery.
type slowDeliverer struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newSlowDeliverer() *slowDeliverer {
	return &slowDeliverer{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (d *slowDeliverer) Dispatch(ctx context.Context, reminder *store.Reminder, firedAt time.Time) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	select {
	case d.entered <- struct{}{}:
	default:
	}
	<-d.release
	return nil
}

func (d *slowDeliverer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestSchedulerDuplicateSignalDuringDeliveryDeliversOnce(t *testing.T) {
	st := NewMemoryStore()
	deliverer := newSlowDeliverer()
	publisher := &mockPublisher{}
	sched := New(st, deliverer, publisher, Config{
		RetryAttempts: 1,
		RetryDelay:    10 * time.Millisecond,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := st.UpsertReminder(ctx, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "stand up",
		DueLocal: dueIn(time.Second), Timezone: "UTC", Recurrence: store.RecurrenceNone,
	})
	require.NoError(t, err)

	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()
	signal := trigger.Signal{Owner: "alice", ReminderUID: "r1"}
	require.NoError(t, sched.HandleSignal(ctx, signal))

	select {
	case <-deliverer.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("delivery did not start")
	}

	// The wake is popped but delivery has not finished; the checkpoint row
	// still exists, so a duplicate signal must not start a second delivery.
	require.NoError(t, sched.HandleSignal(ctx, signal))
	close(deliverer.release)

	assert.Eventually(t, func() bool {
		r, _ := st.GetReminder(ctx, "alice", "r1")
		timer, _ := st.GetWorkflowTimer(ctx, "alice", "r1")
		return r == nil && timer == nil
	}, 10*time.Second, 50*time.Millisecond, "expected record and checkpoint retired")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, deliverer.Calls())
}

func TestSchedulerDeletedWhileWaiting(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "call bank", DueLocal: dueIn(2 * time.Second),
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))
	require.NoError(t, f.store.DeleteReminder(ctx, "alice", "r1"))

	assert.Eventually(t, func() bool {
		timer, _ := f.store.GetWorkflowTimer(ctx, "alice", "r1")
		return timer == nil
	}, 10*time.Second, 50*time.Millisecond, "expected orphaned checkpoint dropped")
	assert.Empty(t, f.sender.Sent())
}

func TestSchedulerAdvancesRecurring(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	due := time.Now().UTC().Truncate(time.Second).Add(2 * time.Second)
	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "check email",
		DueLocal: store.FormatDueLocal(due), Recurrence: store.RecurrenceDaily,
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))

	assert.Eventually(t, func() bool {
		return len(f.sender.Sent()) == 1
	}, 10*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		r, _ := f.store.GetReminder(ctx, "alice", "r1")
		return r != nil && r.DueLocal == store.FormatDueLocal(due.AddDate(0, 0, 1))
	}, 5*time.Second, 50*time.Millisecond, "expected due time advanced by one day")

	assert.Eventually(t, func() bool {
		for _, s := range f.publisher.Signals() {
			if s.Owner == "alice" && s.ReminderUID == "r1" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "expected next occurrence announced")
}

func TestSchedulerStaleReminderNotDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "ancient", DueLocal: "01/01/2020 00:00:00",
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))

	timer, err := f.store.GetWorkflowTimer(ctx, "alice", "r1")
	require.NoError(t, err)
	assert.Nil(t, timer)
	assert.Empty(t, f.sender.Sent())
}

func TestSchedulerBadRecordIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "broken", DueLocal: "not a date",
	})
	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r2", Text: "bad zone",
		DueLocal: dueIn(time.Hour), Timezone: "Mars/Olympus_Mons",
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()

	// A signal for an unusable record is consumed, not redelivered forever.
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r2"}))

	for _, uid := range []string{"r1", "r2"} {
		timer, err := f.store.GetWorkflowTimer(ctx, "alice", uid)
		require.NoError(t, err)
		assert.Nil(t, timer)
	}
}

func TestSchedulerRehydratesCheckpoints(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	due := time.Date(2023, 5, 7, 14, 0, 0, 0, time.UTC)
	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "missed while down",
		DueLocal: store.FormatDueLocal(due),
	})
	_, err := f.store.UpsertWorkflowTimer(ctx, &store.WorkflowTimer{
		Owner: "alice", ReminderUID: "r1", FireAt: due.Unix(),
	})
	require.NoError(t, err)

	// Start alone must resume the persisted wait and deliver the overdue
	// occurrence without any trigger signal.
	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()

	assert.Eventually(t, func() bool {
		return len(f.sender.Sent()) == 1
	}, 10*time.Second, 50*time.Millisecond)
}

func TestSchedulerStartSweepsUnscheduledReminders(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The record exists but its creation announcement was lost before a
	// checkpoint was persisted.
	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "lost announcement", DueLocal: dueIn(2 * time.Second),
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()

	assert.Eventually(t, func() bool {
		return len(f.sender.Sent()) == 1
	}, 10*time.Second, 50*time.Millisecond, "expected sweep to schedule and deliver")
}

func TestSchedulerConsumedOccurrenceNotRedelivered(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The record was already advanced to its next occurrence, but the
	// checkpoint for the consumed one survived a crash.
	consumed := time.Date(2023, 5, 7, 9, 0, 0, 0, time.UTC)
	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "check email",
		DueLocal:   store.FormatDueLocal(consumed.AddDate(0, 0, 1)),
		Recurrence: store.RecurrenceDaily,
	})
	_, err := f.store.UpsertWorkflowTimer(ctx, &store.WorkflowTimer{
		Owner: "alice", ReminderUID: "r1", FireAt: consumed.Unix(),
	})
	require.NoError(t, err)

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()

	assert.Eventually(t, func() bool {
		timer, _ := f.store.GetWorkflowTimer(ctx, "alice", "r1")
		return timer == nil
	}, 10*time.Second, 50*time.Millisecond, "expected stale checkpoint consumed")
	assert.Empty(t, f.sender.Sent())

	// Scheduling re-enters for the next occurrence instead.
	assert.Eventually(t, func() bool {
		return len(f.publisher.Signals()) > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSchedulerRetriesDelivery(t *testing.T) {
	f := newFixture(t)
	f.sender.FailTimes = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "flaky", DueLocal: dueIn(2 * time.Second),
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))

	assert.Eventually(t, func() bool {
		return len(f.sender.Sent()) == 1
	}, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, 3, f.sender.Attempts())
}

func TestSchedulerExhaustedRetriesDoNotBreakRecurrence(t *testing.T) {
	f := newFixture(t)
	f.sender.FailTimes = 100
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	due := time.Now().UTC().Truncate(time.Second).Add(2 * time.Second)
	putReminder(t, f, &store.Reminder{
		Owner: "alice", UID: "r1", Text: "unreachable",
		DueLocal: store.FormatDueLocal(due), Recurrence: store.RecurrenceWeekly,
	})

	require.NoError(t, f.scheduler.Start(ctx))
	defer f.scheduler.Stop()
	require.NoError(t, f.scheduler.HandleSignal(ctx, trigger.Signal{Owner: "alice", ReminderUID: "r1"}))

	// Delivery exhausts its attempts, yet the record still advances.
	assert.Eventually(t, func() bool {
		r, _ := f.store.GetReminder(ctx, "alice", "r1")
		return r != nil && r.DueLocal == store.FormatDueLocal(due.AddDate(0, 0, 7))
	}, 10*time.Second, 50*time.Millisecond)
	assert.Empty(t, f.sender.Sent())
	assert.Equal(t, 5, f.sender.Attempts())
}
