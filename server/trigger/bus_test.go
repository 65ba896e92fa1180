package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Signal
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(ctx, func(s Signal) error {
		mu.Lock()
		got = append(got, s)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	}))

	require.NoError(t, bus.Publish(Signal{Owner: "alice", ReminderUID: "r1"}))
	require.NoError(t, bus.Publish(Signal{Owner: "bob", ReminderUID: "r2"}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signals")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, Signal{Owner: "alice", ReminderUID: "r1"})
	assert.Contains(t, got, Signal{Owner: "bob", ReminderUID: "r2"})
}

func TestBusRedeliversOnHandlerError(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(ctx, func(s Signal) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient failure")
		}
		if attempts == 2 {
			close(done)
		}
		return nil
	}))

	require.NoError(t, bus.Publish(Signal{Owner: "alice", ReminderUID: "r1"}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}
}
