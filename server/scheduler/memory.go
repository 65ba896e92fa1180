package scheduler

import (
	"context"
	"sync"

	"github.com/nagbot/nagbot/store"
)

// MemoryStore is an in-memory ReminderStore for testing.
type MemoryStore struct {
	mu        sync.RWMutex
	reminders map[string]*store.Reminder
	timers    map[string]*store.WorkflowTimer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reminders: make(map[string]*store.Reminder),
		timers:    make(map[string]*store.WorkflowTimer),
	}
}

func memoryKey(owner, uid string) string {
	return owner + "/" + uid
}

func (s *MemoryStore) GetReminder(_ context.Context, owner, uid string) (*store.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[memoryKey(owner, uid)]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (s *MemoryStore) ListReminders(_ context.Context, owner string) ([]*store.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Reminder
	for _, r := range s.reminders {
		if owner == "" || r.Owner == owner {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertReminder(_ context.Context, upsert *store.Reminder) (*store.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *upsert
	s.reminders[memoryKey(upsert.Owner, upsert.UID)] = &copied
	result := copied
	return &result, nil
}

func (s *MemoryStore) DeleteReminder(_ context.Context, owner, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reminders, memoryKey(owner, uid))
	return nil
}

func (s *MemoryStore) GetWorkflowTimer(_ context.Context, owner, reminderUID string) (*store.WorkflowTimer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timers[memoryKey(owner, reminderUID)]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (s *MemoryStore) UpsertWorkflowTimer(_ context.Context, upsert *store.WorkflowTimer) (*store.WorkflowTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *upsert
	s.timers[memoryKey(upsert.Owner, upsert.ReminderUID)] = &copied
	result := copied
	return &result, nil
}

func (s *MemoryStore) ListWorkflowTimers(_ context.Context, find *store.FindWorkflowTimer) ([]*store.WorkflowTimer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.WorkflowTimer
	for _, t := range s.timers {
		if find != nil {
			if find.Owner != nil && t.Owner != *find.Owner {
				continue
			}
			if find.ReminderUID != nil && t.ReminderUID != *find.ReminderUID {
				continue
			}
		}
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) DeleteWorkflowTimer(_ context.Context, owner, reminderUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, memoryKey(owner, reminderUID))
	return nil
}
