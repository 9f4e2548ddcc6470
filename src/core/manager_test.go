package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type event struct {
	name, op string
}

type fakeModule struct {
	name   string
	err    error
	events *[]event
}

func (f *fakeModule) Name() string { return f.name }

func (f *fakeModule) Start(context.Context) error {
	*f.events = append(*f.events, event{f.name, "start"})
	return f.err
}

func (f *fakeModule) Stop(context.Context) {
	*f.events = append(*f.events, event{f.name, "stop"})
}

func TestManagerOrder(t *testing.T) {
	var events []event
	m := NewManager(zap.NewNop(), &fakeModule{name: "a", events: &events})
	require.NoError(t, m.Add(&fakeModule{name: "b", events: &events}))

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrStarted)
	assert.ErrorIs(t, m.Add(&fakeModule{name: "c", events: &events}), ErrAddStarted)

	m.Stop(context.Background())
	assert.Equal(t, []event{{"a", "start"}, {"b", "start"}, {"b", "stop"}, {"a", "stop"}}, events)
}

func TestManagerRollsBackOnFailure(t *testing.T) {
	var events []event
	boom := errors.New("boom")
	m := NewManager(zap.NewNop(),
		&fakeModule{name: "a", events: &events},
		&fakeModule{name: "b", err: boom, events: &events},
		&fakeModule{name: "c", events: &events},
	)

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	var se *StartError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b", se.Module)
	assert.Equal(t, []event{{"a", "start"}, {"b", "start"}, {"a", "stop"}}, events)
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	var events []event
	m := NewManager(zap.NewNop(), &fakeModule{name: "a", events: &events})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Run(ctx, time.Second))
	assert.Equal(t, []event{{"a", "start"}, {"a", "stop"}}, events)
}
