package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/covops/capturenet/protocol"

	"github.com/stretchr/testify/require"
)

func TestChanBusDeliversInSendOrderPerTag(t *testing.T) {
	bus := NewChanBus(2)
	ctx := context.Background()
	tag := protocol.Tag{Kind: protocol.KindRelay, Step: 0}

	for i := 0; i < 8; i++ {
		require.NoError(t, bus.Send(ctx, 1, tag, protocol.FragmentRelayMsg{Step: i}))
	}
	for i := 0; i < 8; i++ {
		msg, err := bus.Receive(ctx, 1, tag)
		require.NoError(t, err)
		require.Equal(t, i, msg.(protocol.FragmentRelayMsg).Step)
	}
}

func TestChanBusKeepsTagsIndependent(t *testing.T) {
	bus := NewChanBus(2)
	ctx := context.Background()
	relayTag := protocol.Tag{Kind: protocol.KindRelay, Step: 3}
	compTag := protocol.Tag{Kind: protocol.KindComplement, Step: 3}

	require.NoError(t, bus.Send(ctx, 1, relayTag, protocol.FragmentRelayMsg{Step: 3}))
	require.NoError(t, bus.Send(ctx, 1, compTag, protocol.ComplementMsg{Step: 3}))

	// Draining the complement tag first must not disturb the relay tag.
	msg, err := bus.Receive(ctx, 1, compTag)
	require.NoError(t, err)
	require.IsType(t, protocol.ComplementMsg{}, msg)

	msg, err = bus.Receive(ctx, 1, relayTag)
	require.NoError(t, err)
	require.IsType(t, protocol.FragmentRelayMsg{}, msg)
}

func TestChanBusReceiveBlocksUntilSend(t *testing.T) {
	bus := NewChanBus(2)
	tag := protocol.Tag{Kind: protocol.KindOffer, Step: 1}

	got := make(chan protocol.Message, 1)
	go func() {
		msg, err := bus.Receive(context.Background(), 0, tag)
		if err == nil {
			got <- msg
		}
	}()

	select {
	case <-got:
		t.Fatal("receive completed before anything was sent")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, bus.Send(context.Background(), 0, tag, protocol.FragmentOfferMsg{Site: 1, Step: 1}))

	select {
	case msg := <-got:
		require.Equal(t, protocol.SiteID(1), msg.(protocol.FragmentOfferMsg).Site)
	case <-time.After(time.Second):
		t.Fatal("receive did not complete after send")
	}
}

func TestChanBusReceiveHonorsDeadline(t *testing.T) {
	bus := NewChanBus(2)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := bus.Receive(ctx, 1, protocol.Tag{Kind: protocol.KindRelay, Step: 0})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChanBusBroadcastReachesAllButSender(t *testing.T) {
	bus := NewChanBus(4)
	ctx := context.Background()

	require.NoError(t, bus.Broadcast(ctx, 0, protocol.TerminateMsg{}))

	for id := ID(1); id < 4; id++ {
		msg, err := bus.Receive(ctx, id, protocol.ControlTag)
		require.NoError(t, err)
		require.IsType(t, protocol.TerminateMsg{}, msg)
	}

	// The sender must not hear its own broadcast.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := bus.Receive(short, 0, protocol.ControlTag)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChanBusRejectsUnknownParticipants(t *testing.T) {
	bus := NewChanBus(2)
	ctx := context.Background()

	err := bus.Send(ctx, 5, protocol.ControlTag, protocol.TerminateMsg{})
	require.ErrorIs(t, err, ErrUnknownParticipant)

	_, err = bus.Receive(ctx, -1, protocol.ControlTag)
	require.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestChanBusSendAfterClose(t *testing.T) {
	bus := NewChanBus(2)
	bus.Close()
	err := bus.Send(context.Background(), 1, protocol.ControlTag, protocol.TerminateMsg{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestBarrierReleasesAllParties(t *testing.T) {
	const parties = 5
	b := NewBarrier(parties)

	for gen := 0; gen < 3; gen++ {
		var wg sync.WaitGroup
		errs := make([]error, parties)
		for i := 0; i < parties; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = b.Wait(context.Background())
			}(i)
		}

		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("generation %d did not release", gen)
		}
		for i, err := range errs {
			require.NoError(t, err, "party %d generation %d", i, gen)
		}
	}
}

func TestBarrierWaitHonorsContext(t *testing.T) {
	b := NewBarrier(2)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := b.Wait(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}
