package services

import (
	"testing"
	"time"
)

func newFeedTestClient(id, userID string) *feedClient {
	return &feedClient{
		id:     id,
		userID: userID,
		send:   make(chan FeedEvent, 16),
	}
}

func TestFeedHubClientManagement(t *testing.T) {
	hub := NewFeedHub()
	go hub.Run()

	c1 := newFeedTestClient("c1", "u1")
	c2 := newFeedTestClient("c2", "u2")

	hub.register <- c1
	hub.register <- c2
	time.Sleep(50 * time.Millisecond)

	hub.mutex.RLock()
	count := len(hub.clients)
	hub.mutex.RUnlock()
	if count != 2 {
		t.Fatalf("expected 2 clients, got %d", count)
	}

	hub.unregister <- c1
	time.Sleep(50 * time.Millisecond)

	hub.mutex.RLock()
	count = len(hub.clients)
	hub.mutex.RUnlock()
	if count != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", count)
	}

	hub.unregister <- c2
}

func TestFeedHubUserScopedDelivery(t *testing.T) {
	hub := NewFeedHub()
	go hub.Run()

	mine := newFeedTestClient("c1", "u1")
	theirs := newFeedTestClient("c2", "u2")
	hub.register <- mine
	hub.register <- theirs
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(FeedEvent{Type: "automation_run", UserID: "u1", Status: "success"})

	select {
	case event := <-mine.send:
		if event.Type != "automation_run" || event.Status != "success" {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected owner to receive the event")
	}

	select {
	case event := <-theirs.send:
		t.Fatalf("other user should not receive the event, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}

	hub.unregister <- mine
	hub.unregister <- theirs
}

func TestFeedHubGlobalEvents(t *testing.T) {
	hub := NewFeedHub()
	go hub.Run()

	c1 := newFeedTestClient("c1", "u1")
	c2 := newFeedTestClient("c2", "u2")
	hub.register <- c1
	hub.register <- c2
	time.Sleep(50 * time.Millisecond)

	// No user id: everyone gets it.
	hub.Broadcast(FeedEvent{Type: "system", Message: "renewal sweep complete"})

	for _, c := range []*feedClient{c1, c2} {
		select {
		case event := <-c.send:
			if event.Type != "system" {
				t.Errorf("unexpected event: %+v", event)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s missed the global event", c.id)
		}
	}

	hub.unregister <- c1
	hub.unregister <- c2
}

func TestFeedBroadcastNeverBlocks(t *testing.T) {
	hub := NewFeedHub()
	// Hub not running: the buffered queue fills, then events drop silently.
	for i := 0; i < 200; i++ {
		hub.Broadcast(FeedEvent{Type: "automation_run"})
	}
}
