package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketview/internal/domain"
	"marketview/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnConfig(factory *fakeFactory) ConnectionConfig {
	return ConnectionConfig{
		Feed:           domain.FeedTrade,
		Market:         domain.MarketSpot,
		Symbols:        []string{"BTCUSDT"},
		Factory:        factory,
		ConnectTimeout: 40 * time.Millisecond,
		ReconnectDelay: 30 * time.Millisecond,
		Metrics:        &infra.Metrics{},
	}
}

func TestConnection_OpenDeliversEvents(t *testing.T) {
	factory := &fakeFactory{}
	received := make(chan domain.StreamEvent, 8)

	cfg := testConnConfig(factory)
	cfg.OnEvent = func(ev domain.StreamEvent) { received <- ev }
	conn := NewConnection(cfg)
	defer conn.Close()

	conn.Open(context.Background())

	require.Eventually(t, func() bool {
		return len(factory.liveStreams()) == 1
	}, time.Second, 5*time.Millisecond, "stream should open")

	factory.liveStreams()[0].push(domain.StreamEvent{Symbol: "BTCUSDT", Feed: domain.FeedTrade})

	select {
	case ev := <-received:
		assert.Equal(t, "BTCUSDT", ev.Symbol)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestConnection_ReconnectsAfterRemoteClose(t *testing.T) {
	factory := &fakeFactory{}
	conn := NewConnection(testConnConfig(factory))
	defer conn.Close()

	conn.Open(context.Background())
	require.Eventually(t, func() bool { return factory.attemptCount() == 1 }, time.Second, 5*time.Millisecond)

	factory.liveStreams()[0].failRemotely(errors.New("abnormal closure"))

	require.Eventually(t, func() bool { return factory.attemptCount() == 2 }, time.Second, 5*time.Millisecond,
		"one reconnect should follow the remote close")

	// Exactly one live stream at any observation point afterwards.
	require.Eventually(t, func() bool { return len(factory.liveStreams()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, factory.attemptCount(), "no duplicate reconnects")
}

func TestConnection_RepeatedClosuresKeepSingleStream(t *testing.T) {
	factory := &fakeFactory{}
	conn := NewConnection(testConnConfig(factory))
	defer conn.Close()

	conn.Open(context.Background())
	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool {
			return len(factory.liveStreams()) == 1
		}, time.Second, 5*time.Millisecond, "round %d: stream should be live", i)
		factory.liveStreams()[0].failRemotely(errors.New("flap"))
	}

	require.Eventually(t, func() bool { return len(factory.liveStreams()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, factory.attemptCount(), "each closure schedules exactly one reconnect")
}

func TestConnection_ConnectTimeoutSchedulesReconnect(t *testing.T) {
	factory := &fakeFactory{hang: true}
	conn := NewConnection(testConnConfig(factory))
	defer conn.Close()

	start := time.Now()
	conn.Open(context.Background())

	// First attempt hangs for the 40ms connect timeout, then one
	// reconnect 30ms later. Not before.
	time.Sleep(55 * time.Millisecond)
	assert.Equal(t, 1, factory.attemptCount(), "reconnect must wait out the delay")

	require.Eventually(t, func() bool { return factory.attemptCount() >= 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestConnection_CloseSuppressesReconnect(t *testing.T) {
	factory := &fakeFactory{}
	conn := NewConnection(testConnConfig(factory))

	conn.Open(context.Background())
	require.Eventually(t, func() bool { return len(factory.liveStreams()) == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Equal(t, StateClosed, conn.State())

	time.Sleep(100 * time.Millisecond) // well past the reconnect delay
	assert.Equal(t, 1, factory.attemptCount(), "deliberate close must not reconnect")
	assert.Empty(t, factory.liveStreams())
}

func TestConnection_SupersededConnectionSkipsReconnect(t *testing.T) {
	factory := &fakeFactory{}
	cfg := testConnConfig(factory)
	cfg.OwnerCheck = func(*Connection) bool { return false } // already replaced
	conn := NewConnection(cfg)
	defer conn.Close()

	conn.Open(context.Background())
	require.Eventually(t, func() bool { return len(factory.liveStreams()) == 1 }, time.Second, 5*time.Millisecond)

	factory.liveStreams()[0].failRemotely(errors.New("gone"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, factory.attemptCount(), "a superseded connection must not redial")
}

func TestConnection_EmptySymbolSetIsTerminal(t *testing.T) {
	factory := &fakeFactory{}
	var terminal error

	cfg := testConnConfig(factory)
	cfg.Symbols = nil
	cfg.OnTerminalFailure = func(err error) { terminal = err }
	conn := NewConnection(cfg)

	conn.Open(context.Background())

	assert.ErrorIs(t, terminal, domain.ErrEmptySymbolSet)
	assert.Zero(t, factory.attemptCount())
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	conn := NewConnection(testConnConfig(factory))
	conn.Open(context.Background())
	require.Eventually(t, func() bool { return len(factory.liveStreams()) == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	conn.Close()
	assert.Equal(t, StateClosed, conn.State())
}
