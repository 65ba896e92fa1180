package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nagbot/nagbot/internal/profile"
	"github.com/nagbot/nagbot/plugin/recognizer"
	"github.com/nagbot/nagbot/server/scheduler"
	"github.com/nagbot/nagbot/server/trigger"
	"github.com/nagbot/nagbot/store"
)

type recordingPublisher struct {
	mu      sync.Mutex
	signals []trigger.Signal
}

func (p *recordingPublisher) Publish(signal trigger.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, signal)
	return nil
}

func (p *recordingPublisher) Signals() []trigger.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]trigger.Signal{}, p.signals...)
}

type apiFixture struct {
	e         *echo.Echo
	store     *scheduler.MemoryStore
	publisher *recordingPublisher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	registry := recognizer.NewRegistry()
	registry.Register(recognizer.NewEnglishBackend())

	st := scheduler.NewMemoryStore()
	publisher := &recordingPublisher{}
	service := NewAPIV1Service(&profile.Profile{
		DefaultLocale:   "en",
		DefaultTimezone: "UTC",
	}, st, recognizer.NewEngine(registry), publisher, nil)

	e := echo.New()
	service.RegisterRoutes(e)
	return &apiFixture{e: e, store: st, publisher: publisher}
}

func (f *apiFixture) do(method, path, owner, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(ownerHeader, owner)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestCreateReminder(t *testing.T) {
	f := newAPIFixture(t)

	reference := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"text": "Call mom tomorrow at 2 PM", "reference": %q}`, reference)
	rec := f.do(http.MethodPost, "/api/v1/reminders", "alice", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got ReminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Call mom", got.Text)
	assert.NotEmpty(t, got.UID)
	assert.Equal(t, "UTC", got.Timezone)
	assert.Equal(t, string(store.RecurrenceNone), got.Recurrence)
	assert.Contains(t, got.DueLocal, "14:00:00")

	signals := f.publisher.Signals()
	require.Len(t, signals, 1)
	assert.Equal(t, trigger.Signal{Owner: "alice", ReminderUID: got.UID}, signals[0])
}

func TestCreateReminderUnrecognized(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reminders", "alice",
		`{"text": "buy more coffee beans"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, f.publisher.Signals())
}

func TestCreateReminderValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing text", `{}`},
		{"bad timezone", `{"text": "call tomorrow", "timezone": "Nowhere/Null"}`},
		{"bad reference", `{"text": "call tomorrow", "reference": "yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/reminders", "alice", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListAndDeleteReminders(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/reminders", "alice",
		`{"text": "water plants tomorrow at noon"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created ReminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodGet, "/api/v1/reminders", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*ReminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	// Another owner sees nothing.
	rec = f.do(http.MethodGet, "/api/v1/reminders", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var other []*ReminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &other))
	assert.Empty(t, other)

	rec = f.do(http.MethodGet, "/api/v1/reminders/"+created.UID, "alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/api/v1/reminders/"+created.UID, "alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/reminders/"+created.UID, "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting again is still a success.
	rec = f.do(http.MethodDelete, "/api/v1/reminders/"+created.UID, "alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
