package inproc

import (
	"errors"
	"testing"

	"webswarm/internal/domain"
)

func TestPublishBroadcasts(t *testing.T) {
	bus := New(4)
	a := bus.Subscribe("printer")
	b := bus.Subscribe("monitor")

	if err := bus.Publish(domain.Event{Kind: domain.EventKindPhase, Phase: "discover"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for name, ch := range map[string]<-chan domain.Event{"printer": a, "monitor": b} {
		select {
		case evt := <-ch:
			if evt.Phase != "discover" {
				t.Fatalf("%s got phase %q", name, evt.Phase)
			}
		default:
			t.Fatalf("%s received nothing", name)
		}
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	bus := New(1)
	first := bus.Subscribe("printer")
	second := bus.Subscribe("printer")
	if first != second {
		t.Fatalf("expected the same channel for the same subscriber")
	}
}

func TestPublishReportsFullQueue(t *testing.T) {
	bus := New(1)
	_ = bus.Subscribe("slow")
	if err := bus.Publish(domain.Event{Kind: domain.EventKindSlot}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := bus.Publish(domain.Event{Kind: domain.EventKindSlot})
	if !errors.Is(err, ErrSubscriberQueueFull) {
		t.Fatalf("err=%v want ErrSubscriberQueueFull", err)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(1)
	ch := bus.Subscribe("printer")
	bus.Unsubscribe("printer")
	bus.Unsubscribe("printer")
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	if err := bus.Publish(domain.Event{}); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
}
