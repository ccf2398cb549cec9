package server

import (
	"testing"

	"github.com/onnwee/livechat-tender/livechat"
)

func TestHubBroadcastToSubscribers(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("b1")
	defer cancelA()
	b, cancelB := h.Subscribe("b1")
	defer cancelB()
	other, cancelOther := h.Subscribe("b2")
	defer cancelOther()

	if got := h.Subscribers("b1"); got != 2 {
		t.Fatalf("Subscribers(b1) = %d, want 2", got)
	}

	h.Broadcast("b1", livechat.Comment{ID: "c1"})

	for name, ch := range map[string]<-chan livechat.Comment{"a": a, "b": b} {
		select {
		case c := <-ch:
			if c.ID != "c1" {
				t.Errorf("%s got %q, want c1", name, c.ID)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}
	select {
	case c := <-other:
		t.Errorf("b2 subscriber received %q", c.ID)
	default:
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("b1")
	defer cancel()

	h.Broadcast("b1", livechat.Comment{ID: "c1"})
	h.Broadcast("b1", livechat.Comment{ID: "c2"}) // must not block

	if c := <-ch; c.ID != "c1" {
		t.Errorf("got %q, want c1", c.ID)
	}
	select {
	case c := <-ch:
		t.Errorf("unexpected %q after drop", c.ID)
	default:
	}
}

func TestHubCancelClosesAndUnregisters(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe("b1")
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if got := h.Subscribers("b1"); got != 0 {
		t.Errorf("Subscribers = %d after cancel", got)
	}
	h.Broadcast("b1", livechat.Comment{ID: "c1"}) // no panic on closed subscriber
}
