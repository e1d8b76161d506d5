package chatd

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCompletion_ResolvesOnce(t *testing.T) {
	c := newCompletion()
	if c.Err() != nil {
		t.Fatal("Err() before resolve != nil")
	}
	first := errors.New("first")
	if !c.resolve(first) {
		t.Fatal("resolve() = false on first call")
	}
	if c.resolve(nil) {
		t.Fatal("resolve() = true on second call")
	}
	if !errors.Is(c.Err(), first) {
		t.Fatalf("Err() = %v, want first", c.Err())
	}
	if err := c.Wait(context.Background()); !errors.Is(err, first) {
		t.Fatalf("Wait() = %v, want first", err)
	}
}

func TestCompletion_WaitHonoursContext(t *testing.T) {
	c := newCompletion()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestCompletion_ResolvedFromAnotherGoroutine(t *testing.T) {
	c := newCompletion()
	go c.resolve(nil)
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed")
	}
}
