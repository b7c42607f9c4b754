package welcome

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	t.Cleanup(bus.Close)

	var mu sync.Mutex
	got := make(map[string]int)
	done := make(chan struct{}, 2)

	for _, name := range []string{"first", "second"} {
		name := name
		bus.Subscribe(func(_ context.Context, e MemberGreeted) {
			mu.Lock()
			got[name]++
			mu.Unlock()
			done <- struct{}{}
		})
	}

	bus.Publish(MemberGreeted{GuildID: "g1", NewMemberID: "m1", GreeterID: "a"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if got["first"] != 1 || got["second"] != 1 {
		t.Errorf("expected one delivery each, got %v", got)
	}
}

func TestBus_PublishAfterCloseIsSafe(t *testing.T) {
	bus := NewBus(4)
	bus.Close()

	// Must not panic or block.
	bus.Publish(MemberGreeted{GuildID: "g1"})
	bus.Close()
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	t.Cleanup(bus.Close)

	block := make(chan struct{})
	bus.Subscribe(func(_ context.Context, _ MemberGreeted) {
		<-block
	})
	defer close(block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(MemberGreeted{GuildID: "g1", GreeterID: "a"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
