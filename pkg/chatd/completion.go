package chatd

import (
	"context"
	"sync"
)

// Completion is a one-shot result of an asynchronous operation such as
// a connect or a disconnect. It is resolved exactly once; later attempts
// to resolve it are ignored.
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func resolvedCompletion(err error) *Completion {
	c := newCompletion()
	c.resolve(err)
	return c
}

// resolve sets the result. It reports whether this call resolved c.
func (c *Completion) resolve(err error) bool {
	resolved := false
	c.once.Do(func() {
		c.err = err
		close(c.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel that is closed once the operation finishes.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the result. It is nil until Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the operation finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
