package consul

import (
	"context"

	consulapi "github.com/hashicorp/consul/api"
)

// Lock wraps a Consul session lock used for scheduler leader election.
// Only the instance holding the lock runs the polling sweeps.
type Lock struct {
	lock *consulapi.Lock
}

func (c *Client) NewLock(key string) (*Lock, error) {
	l, err := c.api.LockOpts(&consulapi.LockOptions{
		Key:         key,
		SessionName: "conductor-scheduler",
	})
	if err != nil {
		return nil, err
	}
	return &Lock{lock: l}, nil
}

// Acquire blocks until the lock is held or ctx is cancelled. The
// returned channel closes if leadership is lost.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	held, err := l.lock.Lock(stop)
	if err != nil {
		return nil, err
	}
	if held == nil {
		return nil, context.Canceled
	}
	lost := make(chan struct{})
	go func() {
		<-held
		close(lost)
	}()
	return lost, nil
}

func (l *Lock) Release() error {
	return l.lock.Unlock()
}
