package ws

import (
	"encoding/json"
	"testing"
)

func newTestClient(hub *Hub, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Send:   make(chan []byte, 8),
		UserID: userID,
	}
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case raw := <-client.Send:
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return event
	default:
		t.Fatal("expected a queued event")
		return Event{}
	}
}

func TestPresenceTracking(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, 1)

	if hub.IsOnline(1) {
		t.Fatal("expected user offline before register")
	}

	hub.Register(client)
	if !hub.IsOnline(1) {
		t.Fatal("expected user online after register")
	}

	hub.Unregister(client)
	if hub.IsOnline(1) {
		t.Fatal("expected user offline after unregister")
	}
}

func TestSendToUser(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, 7)
	hub.Register(client)

	if !hub.SendToUser(7, "newMessage", map[string]string{"text": "hi"}) {
		t.Fatal("expected delivery to connected user")
	}
	event := receiveEvent(t, client)
	if event.Event != "newMessage" {
		t.Fatalf("expected newMessage event, got %s", event.Event)
	}

	if hub.SendToUser(99, "newMessage", nil) {
		t.Fatal("expected no delivery to disconnected user")
	}
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	hub := NewHub()
	first := newTestClient(hub, 4)
	second := newTestClient(hub, 4)

	if hub.Register(first) {
		t.Fatal("first connection should not report a replacement")
	}
	if !hub.Register(second) {
		t.Fatal("second connection should report a replacement")
	}

	select {
	case _, open := <-first.Send:
		if open {
			t.Fatal("expected replaced connection's channel to be closed")
		}
	default:
		t.Fatal("expected replaced connection's channel to be closed")
	}

	if !hub.SendToUser(4, "newMessage", nil) {
		t.Fatal("expected delivery to the replacement connection")
	}
	event := receiveEvent(t, second)
	if event.Event != "newMessage" {
		t.Fatalf("expected newMessage on the replacement, got %s", event.Event)
	}
}

func TestDeliverToStaleClientDoesNotPanic(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, 6)
	hub.Register(client)
	hub.Unregister(client)

	// A sender holding a stale pointer must skip the closed channel.
	hub.deliver(client, "newMessage", nil)

	if _, open := <-client.Send; open {
		t.Fatal("expected no delivery on the closed channel")
	}
}

func TestConsultantRoomScoping(t *testing.T) {
	hub := NewHub()
	member := newTestClient(hub, 10)
	outsider := newTestClient(hub, 11)
	hub.Register(member)
	hub.Register(outsider)

	hub.JoinConsultantRoom(5, member)
	hub.EmitToConsultant(5, "new-query", map[string]uint{"query_id": 42})

	event := receiveEvent(t, member)
	if event.Event != "new-query" {
		t.Fatalf("expected new-query event, got %s", event.Event)
	}

	select {
	case <-outsider.Send:
		t.Fatal("outsider should not receive consultant room events")
	default:
	}
}

func TestUnregisterLeavesRooms(t *testing.T) {
	hub := NewHub()
	member := newTestClient(hub, 20)
	hub.Register(member)
	hub.JoinConsultantRoom(3, member)

	hub.Unregister(member)
	// Emitting after unregister must not panic or deliver.
	hub.EmitToConsultant(3, "update-query", nil)

	if hub.IsOnline(20) {
		t.Fatal("expected user offline")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	first := newTestClient(hub, 1)
	second := newTestClient(hub, 2)
	hub.Register(first)
	hub.Register(second)

	hub.Broadcast("userOnline", map[string]uint{"user_id": 3})

	for _, client := range []*Client{first, second} {
		event := receiveEvent(t, client)
		if event.Event != "userOnline" {
			t.Fatalf("expected userOnline event, got %s", event.Event)
		}
	}
}
