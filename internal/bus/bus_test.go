package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("refresh.", 10)
	defer unsub()

	b.Emit(KindRefreshCompleted, 3)

	select {
	case evt := <-ch:
		if evt.Kind != KindRefreshCompleted {
			t.Errorf("got kind %q, want %s", evt.Kind, KindRefreshCompleted)
		}
		if evt.ID == "" || evt.Timestamp.IsZero() {
			t.Errorf("event not stamped: %+v", evt)
		}
		if evt.Payload != 3 {
			t.Errorf("payload = %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("prompt.", 10)
	defer unsub()

	b.Emit(KindFriendsChanged, nil)
	b.Emit(KindPromptSent, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindPromptSent {
			t.Errorf("got kind %q, want %s", evt.Kind, KindPromptSent)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("push.", 10)
	unsub()

	b.Emit(KindPushNote, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("push.", 1)
	defer unsub()

	b.Emit(KindPushNote, nil)
	b.Emit(KindPushInvite, nil)

	evt := <-ch
	if evt.Kind != KindPushNote {
		t.Errorf("got %q, want %s", evt.Kind, KindPushNote)
	}
}

func TestNilBusEmit(t *testing.T) {
	var b *Bus
	b.Emit(KindPushNote, nil)
}
