package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHub_Publish_DeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("req-1")

	hub.Publish(context.Background(), "req-1", Notification{RequestID: "req-1", Status: "CONFIRMED", EventType: EventBookingConfirmed})

	select {
	case n := <-sub:
		if n.RequestID != "req-1" || n.Status != "CONFIRMED" {
			t.Errorf("received %+v, want RequestID=req-1 Status=CONFIRMED", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a notification to be delivered")
	}

	// The channel is closed after its single delivery.
	if _, ok := <-sub; ok {
		t.Error("expected the subscriber channel to be closed after delivery")
	}
}

func TestHub_Publish_LateSubscriberGetsNothing(t *testing.T) {
	hub := NewHub()

	hub.Publish(context.Background(), "req-1", Notification{RequestID: "req-1", Status: "CONFIRMED"})

	sub := hub.Subscribe("req-1")
	select {
	case n, ok := <-sub:
		if ok {
			t.Errorf("expected no notification for a late subscriber, got %+v", n)
		}
	case <-time.After(50 * time.Millisecond):
		// No delivery within the window; correct, since Publish already fired.
	}
}

func TestHub_Publish_DeliversWebhook(t *testing.T) {
	received := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hub := NewHub()
	hub.RegisterWebhook("req-1", server.URL)

	hub.Publish(context.Background(), "req-1", Notification{BookingID: "TRV-1", RequestID: "req-1", EventType: EventBookingConfirmed})

	select {
	case r := <-received:
		if r.Header.Get("X-Booking-Id") != "TRV-1" {
			t.Errorf("X-Booking-Id header = %q, want TRV-1", r.Header.Get("X-Booking-Id"))
		}
		if r.Header.Get("X-Event-Type") != string(EventBookingConfirmed) {
			t.Errorf("X-Event-Type header = %q, want %q", r.Header.Get("X-Event-Type"), EventBookingConfirmed)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the webhook to be invoked")
	}
}

func TestHub_Publish_WebhookRegistrationConsumedEvenOnFailure(t *testing.T) {
	hub := NewHub()
	hub.RegisterWebhook("req-2", "http://127.0.0.1:0/unreachable")

	// First publish consumes the registration regardless of delivery
	// outcome; a second publish for the same key must not retry.
	hub.Publish(context.Background(), "req-2", Notification{BookingID: "TRV-2"})

	hub.mu.Lock()
	_, stillRegistered := hub.webhooks["req-2"]
	hub.mu.Unlock()
	if stillRegistered {
		t.Error("expected webhook registration to be consumed after the first Publish")
	}
}

func TestHub_CleanupSubscription(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("req-1")

	hub.CleanupSubscription("req-1")

	if _, ok := <-sub; ok {
		t.Error("expected the subscriber channel to be closed by CleanupSubscription")
	}
}
