package main

import (
	"context"
	"testing"
	"time"
)

type savedChatMessage struct {
	sessionID int
	senderID  int
	body      string
	flagged   bool
}

type fakeChatStore struct {
	peers  map[int]int // session id -> peer of the sending user
	saved  []savedChatMessage
	nextID int64
}

func (s *fakeChatStore) SessionPeer(ctx context.Context, sessionID, userID int) (int, error) {
	peer, ok := s.peers[sessionID]
	if !ok {
		return 0, notFoundf("session %d", sessionID)
	}
	return peer, nil
}

func (s *fakeChatStore) SaveMessage(ctx context.Context, sessionID, senderID int, body string, mod *ModerationResult) (int64, time.Time, error) {
	s.nextID++
	s.saved = append(s.saved, savedChatMessage{sessionID, senderID, body, mod.ShouldFlag})
	return s.nextID, time.Now(), nil
}

func chatTestClients(t *testing.T) (*Client, *Client, *fakeChatStore, *fakeNotifier) {
	t.Helper()
	store := &fakeChatStore{peers: map[int]int{1: 2}}
	notifier := &fakeNotifier{}
	srv := &chatServer{store: store, hub: newHub(), moderator: keywordModerator{}, notifier: notifier}
	sender := &Client{userID: 1, send: make(chan ServerEvent, 4), srv: srv}
	peer := &Client{userID: 2, send: make(chan ServerEvent, 4), srv: srv}
	srv.hub.register(sender)
	srv.hub.register(peer)
	return sender, peer, store, notifier
}

func recvEvent(t *testing.T, ch chan ServerEvent) ServerEvent {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	default:
		t.Fatal("no event queued")
		return ServerEvent{}
	}
}

func assertNoEvent(t *testing.T, ch chan ServerEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	default:
	}
}

func TestHandleMessageRelaysCleanText(t *testing.T) {
	sender, peer, store, notifier := chatTestClients(t)

	sender.handleMessage(ChatMessage{Type: "message", SessionID: 1, Body: "Coffee this weekend?"})

	if len(store.saved) != 1 {
		t.Fatalf("got %d saved messages, want 1", len(store.saved))
	}
	if store.saved[0].flagged {
		t.Error("clean message saved as flagged")
	}

	evt := recvEvent(t, peer.send)
	if evt.Type != "message" || evt.From != 1 {
		t.Errorf("peer event = %+v, want message from 1", evt)
	}
	msg, ok := evt.Data.(ChatMessage)
	if !ok || msg.Body != "Coffee this weekend?" {
		t.Errorf("peer payload = %+v", evt.Data)
	}

	// Sender gets the echo so its UI updates.
	echo := recvEvent(t, sender.send)
	if echo.Type != "message" {
		t.Errorf("sender echo = %+v, want message", echo)
	}

	if len(notifier.sent) != 0 {
		t.Errorf("no notification expected for clean message, got %d", len(notifier.sent))
	}
}

func TestHandleMessageBlocksFlaggedText(t *testing.T) {
	sender, peer, store, notifier := chatTestClients(t)

	sender.handleMessage(ChatMessage{Type: "message", SessionID: 1, Body: "I hate you"})

	// Stored for the audit trail, flagged.
	if len(store.saved) != 1 {
		t.Fatalf("got %d saved messages, want 1", len(store.saved))
	}
	if !store.saved[0].flagged {
		t.Error("message saved without the flag")
	}

	// Never relayed to the peer.
	assertNoEvent(t, peer.send)

	// Sender is told why.
	evt := recvEvent(t, sender.send)
	if evt.Type != "error" || evt.Data != "message blocked by moderation" {
		t.Errorf("sender event = %+v, want moderation error", evt)
	}

	// And receives a system notification.
	if len(notifier.sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifier.sent))
	}
	if notifier.sent[0].UserID != 1 || notifier.sent[0].Type != "system" {
		t.Errorf("notification = %+v, want type system to user 1", notifier.sent[0])
	}
}

func TestHandleMessageUnknownSession(t *testing.T) {
	sender, peer, store, _ := chatTestClients(t)

	sender.handleMessage(ChatMessage{Type: "message", SessionID: 9, Body: "hello"})

	if len(store.saved) != 0 {
		t.Errorf("nothing should be saved, got %d messages", len(store.saved))
	}
	assertNoEvent(t, peer.send)
	evt := recvEvent(t, sender.send)
	if evt.Type != "error" || evt.Data != "no active session" {
		t.Errorf("sender event = %+v, want session error", evt)
	}
}
