package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pulsechat/internal/app/user"
	"pulsechat/internal/pkg/errs"
)

// stubAuth is a deterministic Authenticator for tests.
type stubAuth struct {
	hashErr  error
	tokenErr error
}

func (s *stubAuth) Hash(credential string) (string, error) {
	if s.hashErr != nil {
		return "", s.hashErr
	}
	return "hashed:" + credential, nil
}

func (s *stubAuth) Compare(hash, credential string) error {
	if hash == "hashed:"+credential {
		return nil
	}
	return errors.New("mismatch")
}

func (s *stubAuth) IssueToken(userID, username string) (string, error) {
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	return "token-" + username, nil
}

type capturedEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drainEvents empties a session's outbound queue.
func drainEvents(t *testing.T, sess *Session) []capturedEvent {
	t.Helper()

	var events []capturedEvent
	for {
		select {
		case data, ok := <-sess.queue:
			if !ok {
				return events
			}
			var ev capturedEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("invalid outbound frame %q: %v", data, err)
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventsOfType(events []capturedEvent, t EventType) []capturedEvent {
	var out []capturedEvent
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func decodePayload(t *testing.T, ev capturedEvent, dst any) {
	t.Helper()
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		t.Fatalf("decoding %s payload: %v", ev.Type, err)
	}
}

func newTestHub() *Hub {
	return NewHub(&stubAuth{}, "https://avatars.test/svg?seed=")
}

// register connects a fresh session and registers a new user on it,
// returning the session and the profile from auth_success.
func register(t *testing.T, h *Hub, connID, username string) (*Session, user.User) {
	t.Helper()

	sess := h.Connect(connID)
	h.Authenticate(sess, AuthPayload{Username: username, Password: "secret-" + username, IsNewUser: true})

	events := drainEvents(t, sess)
	success := eventsOfType(events, EventAuthSuccess)
	if len(success) != 1 {
		t.Fatalf("expected one auth_success for %s, got events %+v", username, events)
	}

	var p AuthSuccessPayload
	decodePayload(t, success[0], &p)
	return sess, p.User
}

func TestRegisterEmitsAuthSuccess(t *testing.T) {
	h := newTestHub()

	sess := h.Connect("c1")
	h.Authenticate(sess, AuthPayload{Username: "alice", Password: "pw", IsNewUser: true})

	events := drainEvents(t, sess)

	success := eventsOfType(events, EventAuthSuccess)
	if len(success) != 1 {
		t.Fatalf("expected auth_success, got %+v", events)
	}

	var p AuthSuccessPayload
	decodePayload(t, success[0], &p)

	if p.Token != "token-alice" {
		t.Errorf("token = %q, want %q", p.Token, "token-alice")
	}
	if p.User.Username != "alice" {
		t.Errorf("username = %q, want alice", p.User.Username)
	}
	if !p.User.Online {
		t.Error("registered user should be online")
	}
	if p.User.Status != user.StatusOnline {
		t.Errorf("status = %q, want online", p.User.Status)
	}
	if p.User.ID == "" {
		t.Error("user id should be generated")
	}
	if !strings.HasPrefix(p.User.Avatar, "https://avatars.test/svg?seed=") {
		t.Errorf("avatar = %q, want seeded from configured base", p.User.Avatar)
	}

	// Registration auto-joins the general room and broadcasts roster
	// and membership to all connections.
	if sess.room != "general" {
		t.Errorf("session room = %q, want general", sess.room)
	}
	if len(eventsOfType(events, EventUserList)) != 1 {
		t.Error("expected a user_list broadcast after registration")
	}
	if len(eventsOfType(events, EventRoomUsers)) != 1 {
		t.Error("expected a room_users broadcast after registration")
	}
}

func TestRegisterNeverSerializesCredentialHash(t *testing.T) {
	h := newTestHub()

	sess := h.Connect("c1")
	h.Authenticate(sess, AuthPayload{Username: "alice", Password: "pw", IsNewUser: true})

	for _, ev := range drainEvents(t, sess) {
		if strings.Contains(string(ev.Payload), "hashed:") {
			t.Fatalf("credential hash leaked in %s payload: %s", ev.Type, ev.Payload)
		}
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newTestHub()
	register(t, h, "c1", "alice")

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: "alice", password: "wrong"},
		{name: "unknown user", username: "nobody", password: "secret-alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := h.Connect("c-" + tt.name)
			h.Authenticate(sess, AuthPayload{Username: tt.username, Password: tt.password})

			events := drainEvents(t, sess)
			authErrs := eventsOfType(events, EventAuthError)
			if len(authErrs) != 1 {
				t.Fatalf("expected auth_error, got %+v", events)
			}

			var p AuthErrorPayload
			decodePayload(t, authErrs[0], &p)

			// The same undifferentiated message for both failure modes.
			want := errs.NewError(errs.ErrInvalidCredentials).Message
			if p.Message != want {
				t.Errorf("message = %q, want %q", p.Message, want)
			}

			if len(eventsOfType(events, EventAuthSuccess)) != 0 {
				t.Error("auth_success must not follow a failed login")
			}
		})
	}
}

func TestLoginResolvesDuplicateUsernamesToFirstMatch(t *testing.T) {
	h := newTestHub()

	// Two distinct users may share a display name.
	s1 := h.Connect("c1")
	h.Authenticate(s1, AuthPayload{Username: "alice", Password: "first-pw", IsNewUser: true})
	drainEvents(t, s1)

	s2 := h.Connect("c2")
	h.Authenticate(s2, AuthPayload{Username: "alice", Password: "second-pw", IsNewUser: true})
	drainEvents(t, s2)

	if len(h.users) != 2 {
		t.Fatalf("expected 2 users after duplicate registration, got %d", len(h.users))
	}

	// Login with the first registrant's credential works.
	s3 := h.Connect("c3")
	h.Authenticate(s3, AuthPayload{Username: "alice", Password: "first-pw"})
	if got := eventsOfType(drainEvents(t, s3), EventAuthSuccess); len(got) != 1 {
		t.Error("expected auth_success for the first registrant's credential")
	}

	// The second registrant's credential fails: only the first match is checked.
	s4 := h.Connect("c4")
	h.Authenticate(s4, AuthPayload{Username: "alice", Password: "second-pw"})
	if got := eventsOfType(drainEvents(t, s4), EventAuthError); len(got) != 1 {
		t.Error("expected auth_error for the second registrant's credential")
	}
}

func TestUnauthenticatedEventsSilentlyDropped(t *testing.T) {
	h := newTestHub()
	sess := h.Connect("c1")

	h.JoinRoom(sess, "general")
	if msg := h.Publish(sess, "general", "hi", KindText); msg != nil {
		t.Error("unauthenticated publish must not create a message")
	}
	if msg := h.SendPrivate(sess, "someone", "hi"); msg != nil {
		t.Error("unauthenticated private send must not create a message")
	}
	h.SetTyping(sess, "general", true)
	h.React(sess, "m1", "general", "thumbsup")
	h.MarkRead(sess, "m1", "general")
	h.UpdateStatus(sess, user.StatusAway)
	h.FetchNotifications(sess)

	if events := drainEvents(t, sess); len(events) != 0 {
		t.Errorf("unauthenticated events must produce no output, got %+v", events)
	}
	if len(h.typing) != 0 {
		t.Error("unauthenticated typing must not be recorded")
	}
}

func TestJoinRoomSendsSnapshotAndLeavesPrevious(t *testing.T) {
	h := newTestHub()
	sess, alice := register(t, h, "c1", "alice")

	h.JoinRoom(sess, "random")
	events := drainEvents(t, sess)

	snapshots := eventsOfType(events, EventRoomMessages)
	if len(snapshots) != 1 {
		t.Fatalf("expected room_messages snapshot, got %+v", events)
	}
	var snap RoomMessagesPayload
	decodePayload(t, snapshots[0], &snap)
	if snap.RoomID != "random" {
		t.Errorf("snapshot room = %q, want random", snap.RoomID)
	}

	joined := eventsOfType(events, EventRoomJoined)
	if len(joined) != 1 {
		t.Fatalf("expected room_joined, got %+v", events)
	}
	var info RoomInfo
	decodePayload(t, joined[0], &info)
	if info.Name != "Random" {
		t.Errorf("room_joined name = %q, want Random", info.Name)
	}

	// Single-room policy: joining random vacated general.
	if _, stillMember := h.rooms["general"].members[alice.ID]; stillMember {
		t.Error("alice should have left general after joining random")
	}
	if _, member := h.rooms["random"].members[alice.ID]; !member {
		t.Error("alice should be a member of random")
	}

	// And again for a second hop.
	h.JoinRoom(sess, "help")
	drainEvents(t, sess)
	if _, stillMember := h.rooms["random"].members[alice.ID]; stillMember {
		t.Error("alice should have left random after joining help")
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newTestHub()
	sess, alice := register(t, h, "c1", "alice")
	other, _ := register(t, h, "c2", "bob")
	drainEvents(t, sess)
	drainEvents(t, other)

	h.JoinRoom(sess, "missing")

	events := drainEvents(t, sess)
	errEvents := eventsOfType(events, EventError)
	if len(errEvents) != 1 {
		t.Fatalf("expected error event, got %+v", events)
	}

	var p ErrorPayload
	decodePayload(t, errEvents[0], &p)
	if p.Code != errs.ErrRoomNotFound {
		t.Errorf("error code = %d, want %d", p.Code, errs.ErrRoomNotFound)
	}

	// Only the requester hears about it, and no state changed.
	if events := drainEvents(t, other); len(events) != 0 {
		t.Errorf("unrelated connection received %+v", events)
	}
	if sess.room != "general" {
		t.Errorf("session room = %q, want unchanged general", sess.room)
	}
	if _, member := h.rooms["general"].members[alice.ID]; !member {
		t.Error("alice's general membership should be unchanged")
	}
}

func TestPublishFansOutToSubscribers(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := register(t, h, "c1", "alice")
	bobSess, _ := register(t, h, "c2", "bob")
	outsiderSess, _ := register(t, h, "c3", "carol")
	h.JoinRoom(outsiderSess, "random")

	drainEvents(t, aliceSess)
	drainEvents(t, bobSess)
	drainEvents(t, outsiderSess)

	msg := h.Publish(aliceSess, "general", "hello", KindText)
	if msg == nil {
		t.Fatal("publish returned nil")
	}

	for _, sess := range []*Session{aliceSess, bobSess} {
		events := drainEvents(t, sess)
		received := eventsOfType(events, EventReceiveMessage)
		if len(received) != 1 {
			t.Fatalf("expected receive_message, got %+v", events)
		}

		var got Message
		decodePayload(t, received[0], &got)
		if got.Sender != "alice" || got.Content != "hello" {
			t.Errorf("got sender=%q content=%q", got.Sender, got.Content)
		}
		if len(got.ReadBy) != 1 || got.ReadBy[0] != alice.ID {
			t.Errorf("readBy = %v, want just the sender", got.ReadBy)
		}
		if got.Kind != KindText {
			t.Errorf("kind = %q, want text", got.Kind)
		}
	}

	// Subscribers of other rooms see nothing.
	if events := drainEvents(t, outsiderSess); len(events) != 0 {
		t.Errorf("outsider received %+v", events)
	}
}

func TestPublishUnknownRoom(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	if msg := h.Publish(sess, "missing", "hello", KindText); msg != nil {
		t.Fatal("publish to unknown room must not create a message")
	}

	errEvents := eventsOfType(drainEvents(t, sess), EventError)
	if len(errEvents) != 1 {
		t.Fatal("expected error event for unknown room")
	}
}

func TestHistoryBoundEvictsOldest(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	var first, second *Message
	for i := 0; i < HistoryLimit+1; i++ {
		msg := h.Publish(sess, "general", "msg", KindText)
		switch i {
		case 0:
			first = msg
		case 1:
			second = msg
		}
		drainEvents(t, sess)
	}

	log := h.rooms["general"].log
	if len(log) != HistoryLimit {
		t.Fatalf("log length = %d, want %d", len(log), HistoryLimit)
	}
	if log[0].ID != second.ID {
		t.Errorf("oldest retained message should be publish #2")
	}
	if h.rooms["general"].findMessage(first.ID) != nil {
		t.Error("publish #1 should have been evicted")
	}
}

func TestHistoryBoundTable(t *testing.T) {
	tests := []struct {
		name      string
		publishes int
		wantLen   int
	}{
		{name: "under the bound", publishes: 7, wantLen: 7},
		{name: "exactly the bound", publishes: HistoryLimit, wantLen: HistoryLimit},
		{name: "over the bound", publishes: HistoryLimit + 25, wantLen: HistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub()
			sess, _ := register(t, h, "c1", "alice")
			drainEvents(t, sess)

			var ids []string
			for i := 0; i < tt.publishes; i++ {
				msg := h.Publish(sess, "general", "m", KindText)
				ids = append(ids, msg.ID)
				drainEvents(t, sess)
			}

			log := h.rooms["general"].log
			if len(log) != tt.wantLen {
				t.Fatalf("log length = %d, want %d", len(log), tt.wantLen)
			}

			// Retained entries are exactly the most recent, in publish order.
			wantIDs := ids[len(ids)-tt.wantLen:]
			for i, msg := range log {
				if msg.ID != wantIDs[i] {
					t.Fatalf("log[%d] = %s, want %s", i, msg.ID, wantIDs[i])
				}
			}
		})
	}
}

func TestOfflineMemberNotificationConsumeOnce(t *testing.T) {
	h := newTestHub()
	aliceSess, _ := register(t, h, "c1", "alice")
	bobSess, bob := register(t, h, "c2", "bob")

	h.Disconnect(bobSess)
	// Bob is offline; restore his general membership so the room still
	// counts him as a member.
	h.rooms["general"].addMember(bob.ID)
	drainEvents(t, aliceSess)

	long := strings.Repeat("x", 80)
	h.Publish(aliceSess, "general", long, KindText)

	queued := h.notifications[bob.ID]
	if len(queued) != 1 {
		t.Fatalf("bob's queue length = %d, want 1", len(queued))
	}
	n := queued[0]
	if n.Kind != "new_message" || n.RoomID != "general" || n.Sender != "alice" {
		t.Errorf("unexpected notification %+v", n)
	}
	if want := strings.Repeat("x", 50) + "..."; n.Preview != want {
		t.Errorf("preview = %q, want %q", n.Preview, want)
	}

	// Bob reconnects and fetches: once full, then empty.
	bobSess2 := h.Connect("c3")
	h.Authenticate(bobSess2, AuthPayload{Username: "bob", Password: "secret-bob"})
	drainEvents(t, bobSess2)

	h.FetchNotifications(bobSess2)
	first := eventsOfType(drainEvents(t, bobSess2), EventNotifications)
	if len(first) != 1 {
		t.Fatal("expected notifications event")
	}
	var got []Notification
	decodePayload(t, first[0], &got)
	if len(got) != 1 {
		t.Fatalf("first fetch returned %d notifications, want 1", len(got))
	}

	h.FetchNotifications(bobSess2)
	second := eventsOfType(drainEvents(t, bobSess2), EventNotifications)
	if len(second) != 1 {
		t.Fatal("expected notifications event on repeat fetch")
	}
	got = nil
	decodePayload(t, second[0], &got)
	if len(got) != 0 {
		t.Errorf("repeat fetch returned %d notifications, want 0", len(got))
	}
}

func TestOnlineMembersGetNoNotifications(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := register(t, h, "c1", "alice")
	_, bob := register(t, h, "c2", "bob")
	drainEvents(t, aliceSess)

	h.Publish(aliceSess, "general", "hello", KindText)

	if len(h.notifications[bob.ID]) != 0 {
		t.Error("online member must not be notified")
	}
	if len(h.notifications[alice.ID]) != 0 {
		t.Error("sender must not be notified")
	}
}

func TestPrivateMessageDeliveryAndEcho(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := register(t, h, "c1", "alice")
	bobSess1, bob := register(t, h, "c2", "bob")

	// Bob's second device.
	bobSess2 := h.Connect("c3")
	h.Authenticate(bobSess2, AuthPayload{Username: "bob", Password: "secret-bob"})

	drainEvents(t, aliceSess)
	drainEvents(t, bobSess1)
	drainEvents(t, bobSess2)

	msg := h.SendPrivate(aliceSess, bob.ID, "psst")
	if msg == nil {
		t.Fatal("private send returned nil")
	}
	if msg.Kind != KindPrivate {
		t.Errorf("kind = %q, want private", msg.Kind)
	}

	// Both of bob's sessions receive it.
	for _, sess := range []*Session{bobSess1, bobSess2} {
		pms := eventsOfType(drainEvents(t, sess), EventPrivateMessage)
		if len(pms) != 1 {
			t.Fatal("expected private_message on every recipient session")
		}
	}

	// The sender's connection always gets the echo.
	echoes := eventsOfType(drainEvents(t, aliceSess), EventPrivateMessage)
	if len(echoes) != 1 {
		t.Fatal("expected private_message echo to sender")
	}
	var echoed Message
	decodePayload(t, echoes[0], &echoed)
	if echoed.RecipientID != bob.ID || echoed.SenderID != alice.ID {
		t.Errorf("echoed message routed %q -> %q", echoed.SenderID, echoed.RecipientID)
	}

	// Stored under the canonical conversation key.
	key := conversationKey(alice.ID, bob.ID)
	if len(h.conversations[key]) != 1 {
		t.Errorf("conversation log length = %d, want 1", len(h.conversations[key]))
	}
}

func TestPrivateMessageOfflineRecipient(t *testing.T) {
	h := newTestHub()
	aliceSess, _ := register(t, h, "c1", "alice")
	bobSess, bob := register(t, h, "c2", "bob")
	h.Disconnect(bobSess)
	drainEvents(t, aliceSess)

	h.SendPrivate(aliceSess, bob.ID, "are you there?")

	queued := h.notifications[bob.ID]
	if len(queued) != 1 {
		t.Fatalf("bob's queue length = %d, want 1", len(queued))
	}
	if queued[0].Kind != "private_message" || queued[0].Sender != "alice" {
		t.Errorf("unexpected notification %+v", queued[0])
	}

	// The echo still reaches the sender immediately.
	if echoes := eventsOfType(drainEvents(t, aliceSess), EventPrivateMessage); len(echoes) != 1 {
		t.Error("expected echo despite offline recipient")
	}
}

func TestPrivateMessageUnknownRecipient(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	if msg := h.SendPrivate(sess, "no-such-user", "hi"); msg != nil {
		t.Fatal("send to unknown recipient must not create a message")
	}

	errEvents := eventsOfType(drainEvents(t, sess), EventError)
	if len(errEvents) != 1 {
		t.Fatal("expected error event")
	}
	var p ErrorPayload
	decodePayload(t, errEvents[0], &p)
	if p.Code != errs.ErrUserNotFound {
		t.Errorf("error code = %d, want %d", p.Code, errs.ErrUserNotFound)
	}
	if len(h.conversations) != 0 {
		t.Error("no conversation should have been stored")
	}
}

func TestTypingBroadcastsDistinctUsernames(t *testing.T) {
	h := newTestHub()
	aliceSess, _ := register(t, h, "c1", "alice")
	bobSess, _ := register(t, h, "c2", "bob")

	// Alice on a second device, typing too.
	aliceSess2 := h.Connect("c3")
	h.Authenticate(aliceSess2, AuthPayload{Username: "alice", Password: "secret-alice"})

	drainEvents(t, aliceSess)
	drainEvents(t, aliceSess2)
	drainEvents(t, bobSess)

	h.SetTyping(aliceSess, "general", true)
	h.SetTyping(aliceSess2, "general", true)
	drainEvents(t, aliceSess)
	drainEvents(t, aliceSess2)

	typingEvents := eventsOfType(drainEvents(t, bobSess), EventTypingUsers)
	if len(typingEvents) != 2 {
		t.Fatalf("expected 2 typing broadcasts, got %d", len(typingEvents))
	}

	var p TypingUsersPayload
	decodePayload(t, typingEvents[len(typingEvents)-1], &p)
	if len(p.Users) != 1 || p.Users[0] != "alice" {
		t.Errorf("typing users = %v, want distinct [alice]", p.Users)
	}

	// Stop-typing on one device keeps the other's entry.
	h.SetTyping(aliceSess, "general", false)
	drainEvents(t, aliceSess)
	typingEvents = eventsOfType(drainEvents(t, bobSess), EventTypingUsers)
	decodePayload(t, typingEvents[len(typingEvents)-1], &p)
	if len(p.Users) != 1 {
		t.Errorf("typing users after one stop = %v, want [alice]", p.Users)
	}

	h.SetTyping(aliceSess2, "general", false)
	drainEvents(t, aliceSess2)
	typingEvents = eventsOfType(drainEvents(t, bobSess), EventTypingUsers)
	decodePayload(t, typingEvents[len(typingEvents)-1], &p)
	if len(p.Users) != 0 {
		t.Errorf("typing users after both stopped = %v, want empty", p.Users)
	}
}

func TestTypingUnknownRoomIgnored(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	h.SetTyping(sess, "missing", true)

	if len(h.typing) != 0 {
		t.Error("typing in unknown room must not be recorded")
	}
	if events := drainEvents(t, sess); len(events) != 0 {
		t.Errorf("expected silence, got %+v", events)
	}
}

func TestReactionIdempotent(t *testing.T) {
	h := newTestHub()
	sess, alice := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	msg := h.Publish(sess, "general", "hello", KindText)
	drainEvents(t, sess)

	h.React(sess, msg.ID, "general", "thumbsup")
	h.React(sess, msg.ID, "general", "thumbsup")

	if got := msg.Reactions["thumbsup"]; len(got) != 1 || got[0] != alice.ID {
		t.Errorf("reaction set = %v, want exactly [%s]", got, alice.ID)
	}

	updates := eventsOfType(drainEvents(t, sess), EventMessageReaction)
	if len(updates) != 2 {
		t.Fatalf("expected 2 reaction broadcasts, got %d", len(updates))
	}
	var p ReactionUpdatePayload
	decodePayload(t, updates[1], &p)
	if len(p.Users) != 1 {
		t.Errorf("second broadcast carries %v, want a single member", p.Users)
	}
	if p.Reaction != "thumbsup" || p.MessageID != msg.ID {
		t.Errorf("broadcast targets %q on %q", p.Reaction, p.MessageID)
	}
}

func TestReactionMissingTargetsSilentlyIgnored(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	h.React(sess, "no-such-message", "general", "thumbsup")
	h.React(sess, "irrelevant", "no-such-room", "thumbsup")
	h.MarkRead(sess, "no-such-message", "general")

	if events := drainEvents(t, sess); len(events) != 0 {
		t.Errorf("expected silence for missing targets, got %+v", events)
	}
}

func TestMarkRead(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := register(t, h, "c1", "alice")
	bobSess, bob := register(t, h, "c2", "bob")
	drainEvents(t, aliceSess)
	drainEvents(t, bobSess)

	msg := h.Publish(aliceSess, "general", "hello", KindText)
	drainEvents(t, aliceSess)
	drainEvents(t, bobSess)

	h.MarkRead(bobSess, msg.ID, "general")
	h.MarkRead(bobSess, msg.ID, "general")

	if len(msg.ReadBy) != 2 {
		t.Fatalf("readBy = %v, want sender and reader exactly once", msg.ReadBy)
	}

	updates := eventsOfType(drainEvents(t, aliceSess), EventMessageRead)
	if len(updates) != 2 {
		t.Fatalf("expected 2 read broadcasts, got %d", len(updates))
	}
	var p ReadUpdatePayload
	decodePayload(t, updates[1], &p)
	want := map[string]bool{alice.ID: true, bob.ID: true}
	if len(p.ReadBy) != 2 || !want[p.ReadBy[0]] || !want[p.ReadBy[1]] {
		t.Errorf("readBy broadcast = %v", p.ReadBy)
	}
}

func TestUpdateStatus(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := register(t, h, "c1", "alice")
	bobSess, _ := register(t, h, "c2", "bob")
	drainEvents(t, aliceSess)
	drainEvents(t, bobSess)

	h.UpdateStatus(aliceSess, user.StatusAway)

	updates := eventsOfType(drainEvents(t, bobSess), EventUserStatusUpdate)
	if len(updates) != 1 {
		t.Fatal("expected user_status_update broadcast")
	}
	var p StatusUpdatePayload
	decodePayload(t, updates[0], &p)
	if p.UserID != alice.ID || p.Status != user.StatusAway {
		t.Errorf("broadcast %+v", p)
	}

	// Status is not presence.
	if !h.users[alice.ID].Online {
		t.Error("status update must not flip the online flag")
	}
}

func TestUpdateStatusInvalidIgnored(t *testing.T) {
	h := newTestHub()
	sess, alice := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	h.UpdateStatus(sess, user.Status("sleeping"))

	if h.users[alice.ID].Status != user.StatusOnline {
		t.Error("invalid status must not be stored")
	}
	if events := drainEvents(t, sess); len(events) != 0 {
		t.Errorf("expected silence, got %+v", events)
	}
}

func TestDisconnectLastSessionFlipsPresence(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := register(t, h, "c1", "alice")
	bobSess, _ := register(t, h, "c2", "bob")
	h.SetTyping(aliceSess, "general", true)
	drainEvents(t, aliceSess)
	drainEvents(t, bobSess)

	h.Disconnect(aliceSess)

	u := h.users[alice.ID]
	if u.Online {
		t.Error("user should be offline after last session disconnects")
	}
	if u.Status != user.StatusOffline {
		t.Errorf("status = %q, want offline", u.Status)
	}
	if u.LastSeen.IsZero() {
		t.Error("lastSeen should be stamped")
	}
	if _, member := h.rooms["general"].members[alice.ID]; member {
		t.Error("membership should be cleaned up")
	}
	if len(h.typing) != 0 {
		t.Error("typing entry should be cleaned up")
	}

	events := drainEvents(t, bobSess)
	if len(eventsOfType(events, EventUserList)) != 1 {
		t.Error("expected roster broadcast after disconnect")
	}
	typingEvents := eventsOfType(events, EventTypingUsers)
	if len(typingEvents) == 0 {
		t.Fatal("expected typing recompute after disconnect")
	}
	var p TypingUsersPayload
	decodePayload(t, typingEvents[len(typingEvents)-1], &p)
	if len(p.Users) != 0 {
		t.Errorf("typing ghost survived disconnect: %v", p.Users)
	}

	// Idempotent: a second disconnect is a no-op.
	h.Disconnect(aliceSess)
	if events := drainEvents(t, bobSess); len(events) != 0 {
		t.Errorf("double disconnect produced %+v", events)
	}
}

func TestReauthenticateReleasesPreviousIdentity(t *testing.T) {
	h := newTestHub()
	sess, alice := register(t, h, "c1", "alice")
	h.JoinRoom(sess, "random")
	h.SetTyping(sess, "random", true)
	drainEvents(t, sess)

	// The same connection authenticates again as a fresh identity.
	h.Authenticate(sess, AuthPayload{Username: "amber", Password: "pw2", IsNewUser: true})

	events := drainEvents(t, sess)
	success := eventsOfType(events, EventAuthSuccess)
	if len(success) != 1 {
		t.Fatalf("expected auth_success, got %+v", events)
	}
	var p AuthSuccessPayload
	decodePayload(t, success[0], &p)
	amber := p.User

	// The abandoned identity is released like a disconnect.
	if _, member := h.rooms["random"].members[alice.ID]; member {
		t.Error("previous identity should have left random")
	}
	if h.users[alice.ID].Online {
		t.Error("abandoned identity should be offline")
	}
	if h.users[alice.ID].Status != user.StatusOffline {
		t.Errorf("abandoned status = %q, want offline", h.users[alice.ID].Status)
	}
	if len(h.typing) != 0 {
		t.Error("typing entry should not survive re-authentication")
	}

	// The new identity is bound and auto-joined as usual.
	if sess.room != "general" {
		t.Errorf("session room = %q, want general", sess.room)
	}
	if _, member := h.rooms["general"].members[amber.ID]; !member {
		t.Error("new identity should be a member of general")
	}

	// A later disconnect leaves no membership behind for either identity.
	h.Disconnect(sess)
	for id, room := range h.rooms {
		if _, member := room.members[alice.ID]; member {
			t.Errorf("alice stranded in %s after disconnect", id)
		}
		if _, member := room.members[amber.ID]; member {
			t.Errorf("amber stranded in %s after disconnect", id)
		}
	}
	if h.users[amber.ID].Online {
		t.Error("amber should be offline after disconnect")
	}
}

func TestReauthenticateSameUser(t *testing.T) {
	h := newTestHub()
	sess, alice := register(t, h, "c1", "alice")
	h.JoinRoom(sess, "random")
	drainEvents(t, sess)

	h.Authenticate(sess, AuthPayload{Username: "alice", Password: "secret-alice"})
	drainEvents(t, sess)

	if _, member := h.rooms["random"].members[alice.ID]; member {
		t.Error("re-login should vacate the previous room")
	}
	if _, member := h.rooms["general"].members[alice.ID]; !member {
		t.Error("re-login should land back in general")
	}
	if !h.users[alice.ID].Online {
		t.Error("user should be online after re-login")
	}
	if h.users[alice.ID].Status != user.StatusOnline {
		t.Errorf("status = %q, want online", h.users[alice.ID].Status)
	}
}

func TestMultiDevicePresenceAndMembership(t *testing.T) {
	h := newTestHub()
	aliceSess1, alice := register(t, h, "c1", "alice")

	aliceSess2 := h.Connect("c2")
	h.Authenticate(aliceSess2, AuthPayload{Username: "alice", Password: "secret-alice"})
	drainEvents(t, aliceSess1)
	drainEvents(t, aliceSess2)

	h.Disconnect(aliceSess1)

	if !h.users[alice.ID].Online {
		t.Error("user must stay online while another session remains")
	}
	if _, member := h.rooms["general"].members[alice.ID]; !member {
		t.Error("membership must survive while the other device is in the room")
	}

	h.Disconnect(aliceSess2)

	if h.users[alice.ID].Online {
		t.Error("user should be offline once the last session is gone")
	}
	if _, member := h.rooms["general"].members[alice.ID]; member {
		t.Error("membership should be removed with the last session")
	}
}

func TestFileUploadFollowsPublishPath(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)

	msg := h.PublishFile(sess, FileUploadPayload{
		RoomID:   "general",
		FileName: "cat.png",
		FileType: "image/png",
		FileSize: 2048,
		FileData: "aGVsbG8=",
	})
	if msg == nil {
		t.Fatal("file publish returned nil")
	}

	if msg.Kind != KindFile || msg.Content != "cat.png" {
		t.Errorf("kind=%q content=%q", msg.Kind, msg.Content)
	}
	if msg.FileType != "image/png" || msg.FileSize != 2048 || msg.FileData != "aGVsbG8=" {
		t.Errorf("file metadata lost: %+v", msg)
	}
	if h.rooms["general"].findMessage(msg.ID) == nil {
		t.Error("file message should be in the room log")
	}

	received := eventsOfType(drainEvents(t, sess), EventReceiveMessage)
	if len(received) != 1 {
		t.Fatal("expected receive_message for the file")
	}
}

func TestRoomSummariesAndHistory(t *testing.T) {
	h := newTestHub()
	sess, _ := register(t, h, "c1", "alice")
	drainEvents(t, sess)
	h.Publish(sess, "general", "hello", KindText)

	summaries := h.RoomSummaries()
	if len(summaries) != 3 {
		t.Fatalf("expected 3 catalog rooms, got %d", len(summaries))
	}
	byID := make(map[string]RoomSummary)
	for _, s := range summaries {
		byID[s.ID] = s
	}
	if byID["general"].UserCount != 1 {
		t.Errorf("general userCount = %d, want 1", byID["general"].UserCount)
	}

	history, ok := h.RoomHistory("general")
	if !ok || len(history) != 1 {
		t.Fatalf("history = %v ok = %v", history, ok)
	}

	if _, ok := h.RoomHistory("missing"); ok {
		t.Error("unknown room history must report not found")
	}

	users := h.UserDirectory()
	if len(users) != 1 || users[0].Username != "alice" {
		t.Errorf("directory = %+v", users)
	}
}
