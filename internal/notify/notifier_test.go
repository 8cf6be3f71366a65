package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeSender struct {
	name string
	sent []string
	fail bool
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	if f.fail {
		return errors.New("boom")
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"quarantine", "reorg"}, discard())
	ctx := context.Background()

	if err := n.Notify(ctx, "quarantine", "Q", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(ctx, "chatter", "C", "m"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}

	if len(s.sent) != 1 || s.sent[0] != "Q" {
		t.Errorf("sent = %v, want only the quarantine alert", s.sent)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, discard())

	if err := n.Notify(context.Background(), "anything", "A", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Errorf("sent = %v, want one delivery", s.sent)
	}
}

func TestFanoutContinuesPastFailedSender(t *testing.T) {
	bad := &fakeSender{name: "bad", fail: true}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "T", "m")
	if err == nil {
		t.Fatal("want combined error from failed sender")
	}
	if len(good.sent) != 1 {
		t.Errorf("good sender sent = %v, want delivery despite sibling failure", good.sent)
	}
}
