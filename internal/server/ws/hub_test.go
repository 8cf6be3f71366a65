package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brixmarket/syncengine/internal/domain"
)

type fakeBus struct {
	signals chan domain.Signal
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Signal, error) {
	return b.signals, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// A delivery on the wildcard subscription must reach the broadcast loop
// tagged with the channel it was published on, not the pattern, otherwise
// clients narrowed to one asset never match it.
func TestPumpTagsFramesWithConcreteChannel(t *testing.T) {
	bus := &fakeBus{signals: make(chan domain.Signal, 1)}
	h := NewHub(bus, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.pumpChannel(ctx, "ch:book:*")

	bus.signals <- domain.Signal{
		Channel: domain.BookChannel("bldg-001"),
		Payload: []byte(`{"asset_id":"bldg-001"}`),
	}

	select {
	case frame := <-h.broadcast:
		if frame.channel != "ch:book:bldg-001" {
			t.Errorf("frame channel = %q, want %q", frame.channel, "ch:book:bldg-001")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame reached the broadcast loop")
	}
}

func TestClientNarrowsToSingleAsset(t *testing.T) {
	c := &client{subs: map[string]struct{}{"ch:book:*": {}}}

	c.applySubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:book:*"}})
	c.applySubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:book:bldg-001"}})

	if !c.wants("ch:book:bldg-001") {
		t.Error("client does not receive the asset it subscribed to")
	}
	if c.wants("ch:book:bldg-002") {
		t.Error("client receives an asset it never subscribed to")
	}
}

func TestDefaultSubscriptionMatchesAllAssets(t *testing.T) {
	c := &client{subs: map[string]struct{}{"ch:book:*": {}}}

	for _, ch := range []string{"ch:book:bldg-001", "ch:book:tower-9"} {
		if !c.wants(ch) {
			t.Errorf("wildcard subscription does not match %q", ch)
		}
	}
}
