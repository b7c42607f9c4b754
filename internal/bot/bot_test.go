package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	dg "github.com/bwmarrin/discordgo"
)

func newTestBot() *Bot {
	b := &Bot{
		events:   make(chan GuildEvent),
		contexts: make(map[string]*GuildContext),
		joins:    make(map[string]map[string]joinPost),
		l:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.ctx = ctx
	b.cancel = cancel

	return b
}

func interactionEvent(guildID string) GuildEvent {
	return GuildEvent{
		Type:        EventTypeInteraction,
		Interaction: &dg.InteractionCreate{Interaction: &dg.Interaction{GuildID: guildID}},
	}
}

func TestRoute_ConcurrentWithRegistration(t *testing.T) {
	b := newTestBot()
	defer b.cancel()

	go b.route()

	const guilds = 16
	var wg sync.WaitGroup
	for i := 0; i < guilds; i++ {
		id := fmt.Sprintf("guild-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.ensure(id)
		}()
		go func() {
			defer wg.Done()
			b.events <- interactionEvent(id)
		}()
	}
	wg.Wait()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.contexts) != guilds {
		t.Errorf("expected %d guild contexts, got %d", guilds, len(b.contexts))
	}
}

func TestRoute_DeliversToGuildChannel(t *testing.T) {
	b := newTestBot()
	defer b.cancel()

	gc := b.ensure("g1")
	go b.route()

	b.events <- interactionEvent("g1")

	select {
	case e := <-gc.Events:
		if e.Type != EventTypeInteraction || e.Interaction.GuildID != "g1" {
			t.Errorf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed event")
	}
}

func TestEnqueue_UnknownGuildDropped(t *testing.T) {
	b := newTestBot()
	defer b.cancel()

	// Must not panic or block when no context is registered yet.
	b.enqueue("unknown", interactionEvent("unknown"))
}
