package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingNotifier records delivered payloads; an optional gate blocks
// deliveries until released.
type recordingNotifier struct {
	mu      sync.Mutex
	got     []Payload
	started chan struct{}
	gate    chan struct{}
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, p Payload) error {
	if n.started != nil {
		n.started <- struct{}{}
	}
	if n.gate != nil {
		<-n.gate
	}
	n.mu.Lock()
	n.got = append(n.got, p)
	n.mu.Unlock()
	return n.err
}

func (n *recordingNotifier) delivered() []Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Payload, len(n.got))
	copy(out, n.got)
	return out
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, 16, testLogger())

	d.Enqueue(Payload{UserID: "u-1", Kind: KindUnlock})
	d.Enqueue(Payload{UserID: "u-2", Kind: KindPromoted})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	got := n.delivered()
	require.Len(t, got, 2)
	assert.Equal(t, "u-1", got[0].UserID)
	assert.Equal(t, "u-2", got[1].UserID)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	n := &recordingNotifier{
		started: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	d := NewDispatcher(n, 1, testLogger())

	// Occupy the worker, fill the single buffer slot, then overflow.
	d.Enqueue(Payload{UserID: "u-1"})
	<-n.started
	d.Enqueue(Payload{UserID: "u-2"})
	d.Enqueue(Payload{UserID: "u-3"}) // dropped, must not block

	close(n.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Len(t, n.delivered(), 2)
}

func TestDispatcherSwallowsDeliveryErrors(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(n, 16, testLogger())

	d.Enqueue(Payload{UserID: "u-1"})
	d.Enqueue(Payload{UserID: "u-2"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	// Both payloads were attempted despite the failures.
	assert.Len(t, n.delivered(), 2)
}

func TestLogNotifier(t *testing.T) {
	n := &LogNotifier{Log: testLogger()}
	assert.NoError(t, n.Notify(context.Background(), Payload{UserID: "u-1", Kind: KindUnlock}))
}
