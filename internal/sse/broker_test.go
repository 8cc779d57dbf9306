package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/taboard/internal/models"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeConnectionChanged, Data: map[string]string{"status": "connected"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: connection.changed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"status":"connected"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishState_ThrottleKeepsLast(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	at := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)
	b.PublishState(&models.AppState{LastUpdated: at}, &models.Event{Kind: models.EventAddCard})
	b.PublishState(&models.AppState{LastUpdated: at.Add(time.Second)}, nil)
	b.PublishState(&models.AppState{LastUpdated: at.Add(2 * time.Second)}, &models.Event{Kind: models.EventMoveCard})

	var msgs []string
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case msg := <-ch:
			msgs = append(msgs, string(msg))
		case <-deadline:
			break loop
		}
	}

	if len(msgs) != 2 {
		t.Fatalf("state events = %d, want 2 (first and trailing): %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], `"kind":"add-card"`) {
		t.Errorf("first event = %q", msgs[0])
	}
	if !strings.Contains(msgs[1], `"kind":"move-card"`) || !strings.Contains(msgs[1], "05:05:07") {
		t.Errorf("trailing event = %q", msgs[1])
	}
}

func TestSSEHandler(t *testing.T) {
	var subscribed atomic.Int32
	b := NewBroker(100*time.Millisecond, WithOnSubscribe(func() { subscribed.Add(1) }))
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}
	if subscribed.Load() != 1 {
		t.Errorf("subscribe hook calls = %d, want 1", subscribed.Load())
	}

	b.PublishState(&models.AppState{LastUpdated: time.Now()}, &models.Event{Kind: models.EventRemoteAdopt})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: state.changed") || !strings.Contains(body, "remote-adopt") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeConnectionChanged, Data: map[string]string{}})
	b.PublishState(&models.AppState{}, nil)
}
