package natsclient

import (
	"context"
	"sync"
)

// Dial creates a client for url and connects it.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c, err := NewClient(url, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Lease is a PubSub held by one endpoint. Release closes the connection only
// if Acquire dialed it.
type Lease struct {
	PubSub
	owned *Client
	once  sync.Once
}

// Acquire returns shared when it is non-nil, otherwise a new connection to
// url.
func Acquire(ctx context.Context, shared PubSub, url string, opts ...ClientOption) (*Lease, error) {
	if shared != nil {
		return &Lease{PubSub: shared}, nil
	}
	c, err := Dial(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	return &Lease{PubSub: c, owned: c}, nil
}

// Owned reports whether Release will close the connection.
func (l *Lease) Owned() bool { return l.owned != nil }

// Release gives the connection back. Safe to call more than once.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		if l.owned != nil {
			err = l.owned.Close(ctx)
		}
	})
	return err
}
