package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(dst *[]EventType) Sink {
	return SinkFunc(func(_ context.Context, ev Event) error {
		*dst = append(*dst, ev.Type)
		return nil
	})
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	var a, b []EventType
	boom := errors.New("boom")
	sink := Multi(collect(&a), nil, SinkFunc(func(context.Context, Event) error { return boom }), collect(&b))

	err := sink.Send(context.Background(), Event{Type: EventLogin})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []EventType{EventLogin}, a)
	assert.Equal(t, []EventType{EventLogin}, b)
}

func TestMinSeverity(t *testing.T) {
	var got []EventType
	sink := MinSeverity(collect(&got), SeverityCritical)

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, Event{Type: EventLogin, Severity: SeverityInfo}))
	require.NoError(t, sink.Send(ctx, Event{Type: EventPasskeyRemoved, Severity: SeverityWarning}))
	require.NoError(t, sink.Send(ctx, Event{Type: EventPasskeyCloneSuspected, Severity: SeverityCritical}))

	assert.Equal(t, []EventType{EventPasskeyCloneSuspected}, got)
}

func TestEmitFillsDefaults(t *testing.T) {
	var got Event
	Emit(context.Background(), SinkFunc(func(_ context.Context, ev Event) error {
		got = ev
		return errors.New("ignored")
	}), nil, Event{Type: EventLogin})

	assert.Equal(t, SeverityInfo, got.Severity)
	assert.False(t, got.OccurredAt.IsZero())

	Emit(context.Background(), nil, nil, Event{Type: EventLogin})
}

func TestAsyncDeliversAfterCallerContextEnds(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	var delivered Event
	sink := Async(SinkFunc(func(ctx context.Context, ev Event) error {
		defer wg.Done()
		delivered = ev
		return ctx.Err()
	}), AsyncOptions{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sink.Send(ctx, Event{Type: EventSessionsRevoked}))
	cancel()

	wg.Wait()
	assert.Equal(t, EventSessionsRevoked, delivered.Type)
}
