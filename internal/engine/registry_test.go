package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingarb/internal/store/memory"
)

func TestRegistryRefusesDuplicatePair(t *testing.T) {
	settlement := time.Now().Add(10 * time.Minute)
	reg := NewRegistry()

	first := NewExecutor(testTradeConfig(), newFakeAdapter(settlement, -0.008, 100),
		memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())
	second := NewExecutor(testTradeConfig(), newFakeAdapter(settlement, -0.008, 100),
		memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		reg.Run(ctx, first)
	}()
	<-started

	// wait for the first cycle to claim its slot
	deadline := time.Now().Add(time.Second)
	for !reg.Running("fake", "BTCUSDT") {
		require.True(t, time.Now().Before(deadline), "first cycle never claimed the registry slot")
		time.Sleep(time.Millisecond)
	}

	_, err := reg.Run(ctx, second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	cancel()
	<-done
	assert.False(t, reg.Running("fake", "BTCUSDT"))
}

func TestRegistryReleasesSlotAfterRun(t *testing.T) {
	settlement := time.Now().Add(120 * time.Millisecond)
	reg := NewRegistry()

	fake := newFakeAdapter(settlement, -0.003, 100) // skip outcome, fast
	exec := NewExecutor(testTradeConfig(), fake, memory.NewRecorder(), nil, NewRealClock(), nil, testLogger())

	outcome, err := reg.Run(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.False(t, reg.Running("fake", "BTCUSDT"))
}
