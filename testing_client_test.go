package pushsub

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Open(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) AddServerSubscription(sub Subscription, id HandlerID, h Handler) {
	m.Called(sub, id, h)
}

func (m *mockClient) RemoveServerSubscription(sub Subscription, id HandlerID) {
	m.Called(sub, id)
}

func (m *mockClient) SendMessage(msg OutboundMessage, noQueue bool) {
	m.Called(msg, noQueue)
}

func (m *mockClient) Cleanup() {
	m.Called()
}
