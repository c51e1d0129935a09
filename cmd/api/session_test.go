package main

import (
	"context"
	"errors"
	"testing"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want inboundKind
	}{
		{"send message", `{"type":"send_message","recipient_id":"abc","message":"hi"}`, kindSendMessage},
		{"typing", `{"type":"typing","recipient_id":"abc","is_typing":true}`, kindTyping},
		{"unknown type", `{"type":"presence_probe"}`, kindUnknown},
		{"malformed json", `{"type":`, kindUnknown},
		{"empty frame", ``, kindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseInbound([]byte(tt.raw)); got.kind != tt.want {
				t.Fatalf("parseInbound(%q).kind = %v, want %v", tt.raw, got.kind, tt.want)
			}
		})
	}
}

func TestSendMessage_PersistsThenDeliversToBoth(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	aliceConn := &fakeSender{}
	bobConn := &fakeSender{}
	env.hub.Register(alice.ID.Hex(), aliceConn)
	env.hub.Register(bob.ID.Hex(), bobConn)

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(
		`{"type":"send_message","recipient_id":"`+bob.ID.Hex()+`","message":"  hello bob  "}`))

	if len(env.msgs.msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(env.msgs.msgs))
	}
	saved := env.msgs.msgs[0]
	if saved.Body != "hello bob" {
		t.Fatalf("body not trimmed: %q", saved.Body)
	}
	if saved.SenderID != alice.ID {
		t.Fatal("wrong sender recorded")
	}

	for name, conn := range map[string]*fakeSender{"sender": aliceConn, "recipient": bobConn} {
		got := conn.received()
		if len(got) != 1 {
			t.Fatalf("%s received %d events, want 1", name, len(got))
		}
		ev, ok := got[0].(newMessageEvent)
		if !ok {
			t.Fatalf("%s received %T, want newMessageEvent", name, got[0])
		}
		if ev.Type != "new_message" || ev.Message != "hello bob" || ev.SenderID != alice.ID.Hex() {
			t.Fatalf("%s got unexpected event: %+v", name, ev)
		}
		if ev.MessageID != saved.ID.Hex() || ev.ChatID != saved.ChatID.Hex() {
			t.Fatalf("%s event ids don't match the persisted message: %+v", name, ev)
		}
	}
}

func TestSendMessage_EmptyBodyOrRecipientIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	bobConn := &fakeSender{}
	env.hub.Register(bob.ID.Hex(), bobConn)

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	frames := []string{
		`{"type":"send_message","recipient_id":"` + bob.ID.Hex() + `","message":"   "}`,
		`{"type":"send_message","recipient_id":"` + bob.ID.Hex() + `"}`,
		`{"type":"send_message","message":"hello"}`,
	}
	for _, raw := range frames {
		sess.handleInbound(context.Background(), []byte(raw))
	}

	if len(env.msgs.msgs) != 0 {
		t.Fatalf("nothing should have been persisted, got %d messages", len(env.msgs.msgs))
	}
	if got := bobConn.received(); len(got) != 0 {
		t.Fatalf("nothing should have been delivered, got %v", got)
	}
}

func TestSendMessage_MalformedRecipientIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(
		`{"type":"send_message","recipient_id":"not-a-hex-id","message":"hello"}`))

	if len(env.msgs.msgs) != 0 {
		t.Fatalf("malformed recipient must not persist anything, got %d", len(env.msgs.msgs))
	}
}

func TestSendMessage_PersistFailureDeliversNothing(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	aliceConn := &fakeSender{}
	bobConn := &fakeSender{}
	env.hub.Register(alice.ID.Hex(), aliceConn)
	env.hub.Register(bob.ID.Hex(), bobConn)

	env.msgs.saveErr = errors.New("write concern failed")

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(
		`{"type":"send_message","recipient_id":"`+bob.ID.Hex()+`","message":"hello"}`))

	if got := aliceConn.received(); len(got) != 0 {
		t.Fatalf("sender must not get an echo for an unpersisted message: %v", got)
	}
	if got := bobConn.received(); len(got) != 0 {
		t.Fatalf("recipient must not see an unpersisted message: %v", got)
	}
}

func TestSendMessage_ChatResolutionFailureDeliversNothing(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	bobConn := &fakeSender{}
	env.hub.Register(bob.ID.Hex(), bobConn)

	env.chats.getOrCreateErr = errors.New("store down")

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(
		`{"type":"send_message","recipient_id":"`+bob.ID.Hex()+`","message":"hello"}`))

	if len(env.msgs.msgs) != 0 {
		t.Fatal("message persisted despite chat resolution failure")
	}
	if got := bobConn.received(); len(got) != 0 {
		t.Fatalf("recipient got events despite failure: %v", got)
	}
}

func TestSendMessage_OfflineRecipientStillPersisted(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	aliceConn := &fakeSender{}
	env.hub.Register(alice.ID.Hex(), aliceConn)
	// bob has no live connection

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(
		`{"type":"send_message","recipient_id":"`+bob.ID.Hex()+`","message":"hello"}`))

	if len(env.msgs.msgs) != 1 {
		t.Fatalf("message to an offline user must still persist, got %d", len(env.msgs.msgs))
	}
	if got := aliceConn.received(); len(got) != 1 {
		t.Fatalf("sender should still get the delivery echo, got %d events", len(got))
	}
}

func TestSendMessage_DeliveryOrderMatchesSendOrder(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	bobConn := &fakeSender{}
	env.hub.Register(bob.ID.Hex(), bobConn)

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	for _, body := range []string{"first", "second", "third"} {
		sess.handleInbound(context.Background(), []byte(
			`{"type":"send_message","recipient_id":"`+bob.ID.Hex()+`","message":"`+body+`"}`))
	}

	got := bobConn.received()
	if len(got) != 3 {
		t.Fatalf("recipient received %d events, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if ev := got[i].(newMessageEvent); ev.Message != want {
			t.Fatalf("event %d = %q, want %q", i, ev.Message, want)
		}
	}
}

func TestTyping_RecipientOnlyAndNotPersisted(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")

	aliceConn := &fakeSender{}
	bobConn := &fakeSender{}
	env.hub.Register(alice.ID.Hex(), aliceConn)
	env.hub.Register(bob.ID.Hex(), bobConn)

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(
		`{"type":"typing","recipient_id":"`+bob.ID.Hex()+`","is_typing":true}`))

	if len(env.msgs.msgs) != 0 {
		t.Fatal("typing indicators must not be persisted")
	}
	if got := aliceConn.received(); len(got) != 0 {
		t.Fatalf("typing must not echo to the sender: %v", got)
	}
	got := bobConn.received()
	if len(got) != 1 {
		t.Fatalf("recipient received %d events, want 1", len(got))
	}
	ev, ok := got[0].(typingEvent)
	if !ok || ev.Type != "typing" || !ev.IsTyping || ev.SenderID != alice.ID.Hex() {
		t.Fatalf("unexpected typing event: %+v", got[0])
	}

	// missing recipient is silently dropped
	sess.handleInbound(context.Background(), []byte(`{"type":"typing","is_typing":true}`))
	if got := bobConn.received(); len(got) != 1 {
		t.Fatalf("recipient-less typing should go nowhere, got %d events", len(got))
	}
}

func TestUnknownInboundIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")

	sess := &session{srv: env.srv, state: stateActive, userID: alice.ID.Hex(), sender: alice.ID}
	sess.handleInbound(context.Background(), []byte(`{"type":"subscribe","channel":"x"}`))
	sess.handleInbound(context.Background(), []byte(`not json at all`))

	if len(env.msgs.msgs) != 0 {
		t.Fatal("unknown events must not touch the store")
	}
}

func TestBroadcastStatus_ContactsOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("Alice", "alice@example.com")
	bob := env.users.add("Bob", "bob@example.com")
	eve := env.users.add("Eve", "eve@example.com")

	// bob shares a chat with alice; eve does not.
	if _, err := env.chats.GetOrCreate(context.Background(), alice.ID, bob.ID); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	bobConn := &fakeSender{}
	eveConn := &fakeSender{}
	env.hub.Register(bob.ID.Hex(), bobConn)
	env.hub.Register(eve.ID.Hex(), eveConn)

	env.srv.delivery.BroadcastStatus(context.Background(), alice.ID.Hex(), "online")

	got := bobConn.received()
	if len(got) != 1 {
		t.Fatalf("contact received %d events, want 1", len(got))
	}
	ev, ok := got[0].(userStatusEvent)
	if !ok || ev.Type != "user_status" || ev.UserID != alice.ID.Hex() || ev.Status != "online" {
		t.Fatalf("unexpected status event: %+v", got[0])
	}
	if got := eveConn.received(); len(got) != 0 {
		t.Fatalf("non-contact received status events: %v", got)
	}
}

func TestBroadcastStatus_BadUserIDIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.srv.delivery.BroadcastStatus(context.Background(), "not-hex", "offline") // must not panic
}
