package pushsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestWatch_CancelRemovesOnce(t *testing.T) {
	client := &mockClient{}
	sub := ForObject("reviewTasks", 42)

	client.On("AddServerSubscription", sub, HandlerID("panel"), mock.Anything).Once()
	client.On("RemoveServerSubscription", sub, HandlerID("panel")).Once()

	cancel := Watch(context.Background(), client, sub, "panel", func(ServerMessage) error { return nil })
	cancel()
	cancel()

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "RemoveServerSubscription", 1)
}

func TestWatch_ContextDoneRemoves(t *testing.T) {
	client := &mockClient{}
	sub := ForType("notifications")
	removed := make(chan struct{})

	client.On("AddServerSubscription", sub, HandlerID("bell"), mock.Anything).Once()
	client.On("RemoveServerSubscription", sub, HandlerID("bell")).Once().Run(func(mock.Arguments) {
		close(removed)
	})

	ctx, cancelCtx := context.WithCancel(context.Background())
	cancel := Watch(ctx, client, sub, "bell", func(ServerMessage) error { return nil })
	cancelCtx()

	select {
	case <-removed:
	case <-time.After(testTimeout):
		t.Fatal("subscription not removed when context ended")
	}
	cancel()

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "RemoveServerSubscription", 1)
}

func TestWatch_WithServerClient(t *testing.T) {
	h := newHarness(t)
	conn := h.connect()

	cancel := Watch(context.Background(), h.client, ForType("tasks"), "w", func(ServerMessage) error { return nil })
	assert.Equal(t, []SubscriptionName{"tasks"}, h.client.DesiredSubscriptions())

	cancel()
	assert.Empty(t, h.client.DesiredSubscriptions())
	assert.Equal(t, []string{subscribeFrame("tasks"), unsubscribeFrame("tasks")}, conn.frames())
}
