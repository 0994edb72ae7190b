package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/alarmd/internal/foundation/errors"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[SessionStarted](b, 1)
	defer unsubscribe()

	require.NoError(t, b.Publish(t.Context(), SessionStarted{AlarmID: 3}))

	select {
	case got := <-ch:
		require.Equal(t, int64(3), got.AlarmID)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_InterfaceSubscriptionReceivesConcreteEvents(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[Event](b, 2)
	defer unsubscribe()

	require.NoError(t, b.Publish(t.Context(), SessionEnded{Outcome: "dismissed"}))
	require.NoError(t, b.Publish(t.Context(), DispatchAborted{Reason: "not found"}))

	require.Equal(t, "session.ended", (<-ch).EventName())
	require.Equal(t, "dispatch.aborted", (<-ch).EventName())
}

func TestBus_PublishBackpressure(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[SessionStarted](b, 0)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	err := b.Publish(ctx, SessionStarted{})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryRuntime))
}

func TestBus_UnsubscribeWhilePublishing(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[SessionStarted](b, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Publish(context.Background(), SessionStarted{})
	}()

	time.Sleep(10 * time.Millisecond)
	unsubscribe()
	wg.Wait()
	require.Equal(t, 0, SubscriberCount[SessionStarted](b))
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	ch, _ := Subscribe[SessionEnded](b, 1)
	require.Equal(t, 1, SubscriberCount[SessionEnded](b))

	b.Close()

	_, ok := <-ch
	require.False(t, ok)
	require.Error(t, b.Publish(t.Context(), SessionEnded{}))

	late, _ := Subscribe[SessionEnded](b, 1)
	_, ok = <-late
	require.False(t, ok)
}

func TestBus_NilEvent(t *testing.T) {
	b := NewBus()
	defer b.Close()
	require.Error(t, b.Publish(t.Context(), nil))
}

func TestBus_FanOutAndRepeatedUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	first, unsubFirst := Subscribe[AlarmsChanged](b, 1)
	second, unsubSecond := Subscribe[AlarmsChanged](b, 1)
	defer unsubSecond()
	require.Equal(t, 2, SubscriberCount[AlarmsChanged](b))

	require.NoError(t, b.Publish(t.Context(), AlarmsChanged{AlarmID: 1, Op: "created"}))
	require.Equal(t, int64(1), (<-first).AlarmID)
	require.Equal(t, int64(1), (<-second).AlarmID)

	unsubFirst()
	unsubFirst()
	require.Equal(t, 1, SubscriberCount[AlarmsChanged](b))
	_, ok := <-first
	require.False(t, ok)

	require.NoError(t, b.Publish(t.Context(), AlarmsChanged{AlarmID: 2, Op: "deleted"}))
	require.Equal(t, int64(2), (<-second).AlarmID)
}
