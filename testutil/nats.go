package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/splice/natsclient"
)

// MockNATSClient is an in-memory natsclient.PubSub. Publish delivers
// synchronously to every current subscriber of the exact subject.
type MockNATSClient struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	subs     map[string]map[int]func(context.Context, []byte)
	nextID   int
	closed   bool
}

var _ natsclient.PubSub = (*MockNATSClient)(nil)

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages: make(map[string][][]byte),
		subs:     make(map[string]map[int]func(context.Context, []byte)),
	}
}

// Publish records data and hands it to subscribers outside the lock.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	c.messages[subject] = append(c.messages[subject], append([]byte(nil), data...))
	handlers := make([]func(context.Context, []byte), 0, len(c.subs[subject]))
	for _, h := range c.subs[subject] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ctx, append([]byte(nil), data...))
	}
	return nil
}

// Subscribe registers handler for subject.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}
	if c.subs[subject] == nil {
		c.subs[subject] = make(map[int]func(context.Context, []byte))
	}
	c.nextID++
	id := c.nextID
	c.subs[subject][id] = handler
	return &mockSub{client: c, subject: subject, id: id}, nil
}

// Messages returns a copy of everything published on subject.
func (c *MockNATSClient) Messages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, len(c.messages[subject]))
	copy(out, c.messages[subject])
	return out
}

// Subscribers returns the number of live subscriptions on subject.
func (c *MockNATSClient) Subscribers(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[subject])
}

// Close rejects further publishes and subscriptions.
func (c *MockNATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[string]map[int]func(context.Context, []byte))
}

type mockSub struct {
	client  *MockNATSClient
	subject string
	id      int
}

func (s *mockSub) Unsubscribe() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	delete(s.client.subs[s.subject], s.id)
	return nil
}
