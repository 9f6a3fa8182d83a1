/*
Package chat contains the in-memory coordination core for the chat server.

This file defines the Hub, which owns every shared structure: the user
directory, the room catalog, live sessions, typing state, private
conversations, and pending notification queues. A single mutex serializes
all mutation, so each inbound event runs to completion before the next one
begins. Broadcasts snapshot their recipients under the lock and deliver with
a non-blocking enqueue, never waiting on a slow connection.
*/
package chat

import (
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pulsechat/internal/app/user"
	"pulsechat/internal/pkg/errs"
	"pulsechat/internal/pkg/logx"
	"pulsechat/internal/pkg/randx"
)

// Authenticator performs credential hashing, verification, and token
// issuance. The hub treats hashes and tokens as opaque.
type Authenticator interface {
	Hash(credential string) (string, error)
	Compare(hash, credential string) error
	IssueToken(userID, username string) (string, error)
}

// typingEntry is the transient per-connection typing record.
type typingEntry struct {
	username string
	roomID   string
}

// RoomSummary describes a room for the read-only query surface.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UserCount   int    `json:"userCount"`
}

// Hub is the coordination core. All state lives in process memory and is
// lost on restart.
type Hub struct {
	mu sync.Mutex

	auth          Authenticator
	avatarBaseURL string

	// users is the directory, with userOrder preserving registration order
	// so duplicate-username login resolves to a deterministic first match.
	users     map[string]*user.User
	userOrder []string

	// sessions maps connection id to its session.
	sessions map[string]*Session

	rooms     map[string]*Room
	roomOrder []string

	// typing is keyed by connection id; entries persist until an explicit
	// stop or disconnect.
	typing map[string]typingEntry

	// notifications holds per-user pending queues, drained whole on fetch.
	notifications map[string][]Notification

	// conversations groups private messages by canonical conversation key.
	conversations map[string][]*Message

	logger zerolog.Logger
}

// NewHub constructs a Hub with the fixed room catalog.
func NewHub(authn Authenticator, avatarBaseURL string) *Hub {
	hubLogger := logx.Logger().With().Str("component", "hub").Logger()

	h := &Hub{
		auth:          authn,
		avatarBaseURL: avatarBaseURL,
		users:         make(map[string]*user.User),
		sessions:      make(map[string]*Session),
		rooms:         make(map[string]*Room),
		typing:        make(map[string]typingEntry),
		notifications: make(map[string][]Notification),
		conversations: make(map[string][]*Message),
		logger:        hubLogger,
	}

	for _, info := range defaultCatalog {
		h.rooms[info.ID] = newRoom(info)
		h.roomOrder = append(h.roomOrder, info.ID)
	}

	return h
}

// Connect registers a new session for a live connection. The session stays
// unauthenticated until an auth event succeeds; every other event from it is
// silently dropped until then.
func (h *Hub) Connect(connID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess := newSession(connID)
	h.sessions[connID] = sess

	h.logger.Info().
		Str("conn_id", connID).
		Int("total_sessions", len(h.sessions)).
		Msg("Connection registered")

	return sess
}

// Authenticate handles both registration and login for a connection.
// Registration always creates a new user; username uniqueness is not
// enforced. Login resolves duplicates to the first registered match and
// reports any failure as the same undifferentiated credentials error.
// A connection that re-authenticates is first detached from its previous
// identity exactly as if it had disconnected, so no membership, typing
// entry, or presence flag is left stranded on the old user.
func (h *Hub) Authenticate(sess *Session, p AuthPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var u *user.User

	if p.IsNewUser {
		hash, err := h.auth.Hash(p.Password)
		if err != nil {
			h.logger.Error().Err(err).Msg("Credential hashing failed during registration")
			sess.send(EventAuthError, AuthErrorPayload{Message: "Authentication failed"})
			return
		}

		u = &user.User{
			ID:             randx.UserID(),
			Username:       p.Username,
			CredentialHash: hash,
			Avatar:         h.avatarBaseURL + url.QueryEscape(p.Username),
		}

		h.users[u.ID] = u
		h.userOrder = append(h.userOrder, u.ID)
	} else {
		u = h.findByUsernameLocked(p.Username)
		if u == nil || h.auth.Compare(u.CredentialHash, p.Password) != nil {
			sess.send(EventAuthError, AuthErrorPayload{
				Message: errs.NewError(errs.ErrInvalidCredentials).Message,
			})
			return
		}
	}

	token, err := h.auth.IssueToken(u.ID, u.Username)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", u.ID).Msg("Token issuance failed")
		sess.send(EventAuthError, AuthErrorPayload{Message: "Authentication failed"})
		return
	}

	h.unbindLocked(sess)

	u.Online = true
	u.Status = user.StatusOnline
	u.LastSeen = time.Now()

	sess.user = u

	sess.send(EventAuthSuccess, AuthSuccessPayload{Token: token, User: *u})

	// Every fresh identity starts out in the general room.
	if room, ok := h.rooms["general"]; ok {
		sess.room = room.info.ID
		room.addMember(u.ID)

		h.broadcastAllLocked(EventUserList, h.rosterLocked())
		h.broadcastAllLocked(EventRoomUsers, RoomUsersPayload{
			RoomID: room.info.ID,
			Users:  room.memberIDs(),
		})
	}

	h.logger.Info().
		Str("user_id", u.ID).
		Str("username", u.Username).
		Bool("new_user", p.IsNewUser).
		Msg("Connection authenticated")
}

// JoinRoom subscribes the connection to a room, implicitly leaving whichever
// room the connection was in before. The requester receives the history
// snapshot; both the vacated and joined rooms get membership broadcasts.
func (h *Hub) JoinRoom(sess *Session, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		roomErr := errs.NewError(errs.ErrRoomNotFound)
		sess.sendError(roomErr.Code, roomErr.Message)
		return
	}

	if prev := sess.room; prev != "" && prev != roomID {
		h.leaveRoomLocked(sess, prev)
	}

	sess.room = roomID
	room.addMember(sess.user.ID)

	sess.send(EventRoomMessages, RoomMessagesPayload{
		RoomID:   roomID,
		Messages: room.lastMessages(JoinSnapshotLimit),
	})

	h.broadcastRoomLocked(roomID, EventRoomUsers, RoomUsersPayload{
		RoomID: roomID,
		Users:  room.memberIDs(),
	})

	sess.send(EventRoomJoined, room.Info())
}

// Publish appends a message to a room's log, fans it out to every current
// subscriber, and queues notifications for offline members. Returns the
// stored message, or nil when the operation was rejected.
func (h *Hub) Publish(sess *Session, roomID, content string, kind MessageKind) *Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return nil
	}

	room, ok := h.rooms[roomID]
	if !ok {
		roomErr := errs.NewError(errs.ErrRoomNotFound)
		sess.sendError(roomErr.Code, roomErr.Message)
		return nil
	}

	if kind == "" {
		kind = KindText
	}

	msg := newMessage(kind, roomID, sess.user.ID, sess.user.Username, content)
	room.appendMessage(msg)

	h.broadcastRoomLocked(roomID, EventReceiveMessage, msg.snapshot())
	h.notifyOfflineMembersLocked(room, sess.user.Username, content)

	return msg
}

// PublishFile follows the same path as Publish for a file message, carrying
// the type label, byte size, and inline payload. No maximum size is enforced.
func (h *Hub) PublishFile(sess *Session, p FileUploadPayload) *Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return nil
	}

	room, ok := h.rooms[p.RoomID]
	if !ok {
		roomErr := errs.NewError(errs.ErrRoomNotFound)
		sess.sendError(roomErr.Code, roomErr.Message)
		return nil
	}

	msg := newMessage(KindFile, p.RoomID, sess.user.ID, sess.user.Username, p.FileName)
	msg.FileType = p.FileType
	msg.FileSize = p.FileSize
	msg.FileData = p.FileData

	room.appendMessage(msg)

	h.broadcastRoomLocked(p.RoomID, EventReceiveMessage, msg.snapshot())
	h.notifyOfflineMembersLocked(room, sess.user.Username, p.FileName)

	return msg
}

// SendPrivate routes a point-to-point message. Online recipients get it on
// every live session; offline ones get a queued notification. The sender's
// own connection always receives the echo immediately.
func (h *Hub) SendPrivate(sess *Session, toUserID, content string) *Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return nil
	}

	recipient, ok := h.users[toUserID]
	if !ok {
		userErr := errs.NewError(errs.ErrUserNotFound)
		sess.sendError(userErr.Code, userErr.Message)
		return nil
	}

	msg := newMessage(KindPrivate, "", sess.user.ID, sess.user.Username, content)
	msg.RecipientID = recipient.ID
	msg.Recipient = recipient.Username

	key := conversationKey(sess.user.ID, recipient.ID)
	h.conversations[key] = append(h.conversations[key], msg)

	snap := msg.snapshot()

	if recipient.Online {
		h.sendToUserLocked(recipient.ID, EventPrivateMessage, snap)
	} else {
		h.notifications[recipient.ID] = append(h.notifications[recipient.ID], Notification{
			Kind:      "private_message",
			Sender:    sess.user.Username,
			Preview:   truncatePreview(content),
			Timestamp: time.Now(),
		})
	}

	sess.send(EventPrivateMessage, snap)

	return msg
}

// SetTyping upserts or removes the connection's typing entry, then
// broadcasts the recomputed list of distinct typing usernames for the room.
// Entries never expire on their own.
func (h *Hub) SetTyping(sess *Session, roomID string, isTyping bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return
	}

	if _, ok := h.rooms[roomID]; !ok {
		return
	}

	if isTyping {
		h.typing[sess.connID] = typingEntry{
			username: sess.user.Username,
			roomID:   roomID,
		}
	} else {
		delete(h.typing, sess.connID)
	}

	h.broadcastTypingLocked(roomID)
}

// React adds the sender to the named reaction set on a message and
// broadcasts the updated member set for that reaction only. A missing room
// or message is silently ignored; repeated reactions are no-ops.
func (h *Hub) React(sess *Session, messageID, roomID, reaction string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	msg := room.findMessage(messageID)
	if msg == nil {
		return
	}

	msg.Reactions[reaction], _ = addUnique(msg.Reactions[reaction], sess.user.ID)

	h.broadcastRoomLocked(roomID, EventMessageReaction, ReactionUpdatePayload{
		MessageID: messageID,
		Reaction:  reaction,
		Users:     msg.Reactions[reaction],
	})
}

// MarkRead adds the sender to a message's read set and broadcasts the
// updated set. Missing room or message is silently ignored.
func (h *Hub) MarkRead(sess *Session, messageID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return
	}

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	msg := room.findMessage(messageID)
	if msg == nil {
		return
	}

	msg.ReadBy, _ = addUnique(msg.ReadBy, sess.user.ID)

	h.broadcastRoomLocked(roomID, EventMessageRead, ReadUpdatePayload{
		MessageID: messageID,
		ReadBy:    msg.ReadBy,
	})
}

// UpdateStatus sets the user's availability status and announces it to all
// connections. It does not touch the online/offline presence flag.
func (h *Hub) UpdateStatus(sess *Session, status user.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return
	}

	if !status.Valid() {
		return
	}

	sess.user.Status = status

	h.broadcastAllLocked(EventUserStatusUpdate, StatusUpdatePayload{
		UserID: sess.user.ID,
		Status: status,
	})
}

// FetchNotifications delivers the user's pending queue to the requesting
// connection and clears it in the same critical section, so a concurrent
// enqueue is never lost or double-delivered.
func (h *Hub) FetchNotifications(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess.user == nil {
		return
	}

	pending := h.notifications[sess.user.ID]
	delete(h.notifications, sess.user.ID)

	if pending == nil {
		pending = []Notification{}
	}

	sess.send(EventNotifications, pending)
}

// Disconnect tears down a session: typing entry first, then room
// membership, then presence, each broadcast from the same critical section.
// Calling it twice, or for a session already replaced, is a no-op.
func (h *Hub) Disconnect(sess *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.sessions[sess.connID]
	if !ok || current != sess {
		return
	}
	delete(h.sessions, sess.connID)

	prev := sess.user
	h.unbindLocked(sess)

	if prev != nil {
		h.broadcastAllLocked(EventUserList, h.rosterLocked())

		h.logger.Info().
			Str("conn_id", sess.connID).
			Str("user_id", prev.ID).
			Msg("Session released")
	}

	sess.release()
}

// RoomSummaries returns the catalog with live membership counts, for the
// read-only query surface.
func (h *Hub) RoomSummaries() []RoomSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]RoomSummary, 0, len(h.roomOrder))
	for _, id := range h.roomOrder {
		room := h.rooms[id]
		out = append(out, RoomSummary{
			ID:          room.info.ID,
			Name:        room.info.Name,
			Description: room.info.Description,
			UserCount:   len(room.members),
		})
	}
	return out
}

// UserDirectory returns a copy of every user profile in registration order.
func (h *Hub) UserDirectory() []user.User {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rosterLocked()
}

// RoomHistory returns snapshots of the last JoinSnapshotLimit messages of a
// room. The second return value reports whether the room exists.
func (h *Hub) RoomHistory(roomID string) ([]Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.lastMessages(JoinSnapshotLimit), true
}

// unbindLocked detaches the session from its current identity: the typing
// entry, room membership, and presence are all recomputed as if the
// connection had dropped. Safe to call on sessions that never authenticated.
func (h *Hub) unbindLocked(sess *Session) {
	if entry, wasTyping := h.typing[sess.connID]; wasTyping {
		delete(h.typing, sess.connID)
		h.broadcastTypingLocked(entry.roomID)
	}

	prev := sess.user
	if prev == nil {
		return
	}

	if sess.room != "" {
		h.leaveRoomLocked(sess, sess.room)
	}

	sess.user = nil

	if !h.userConnectedLocked(prev.ID) {
		prev.Online = false
		prev.Status = user.StatusOffline
		prev.LastSeen = time.Now()
	}
}

// findByUsernameLocked resolves a username to the earliest registered user
// carrying it, or nil.
func (h *Hub) findByUsernameLocked(username string) *user.User {
	for _, id := range h.userOrder {
		if u := h.users[id]; u.Username == username {
			return u
		}
	}
	return nil
}

// userConnectedLocked reports whether any live session is bound to userID.
func (h *Hub) userConnectedLocked(userID string) bool {
	for _, s := range h.sessions {
		if s.user != nil && s.user.ID == userID {
			return true
		}
	}
	return false
}

// userSubscribedLocked reports whether any live session of userID currently
// subscribes to roomID.
func (h *Hub) userSubscribedLocked(userID, roomID string) bool {
	for _, s := range h.sessions {
		if s.user != nil && s.user.ID == userID && s.room == roomID {
			return true
		}
	}
	return false
}

// leaveRoomLocked unsubscribes the session from roomID. The user's
// membership is kept while another of their sessions remains in the room,
// so a second device does not evict the first.
func (h *Hub) leaveRoomLocked(sess *Session, roomID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	sess.room = ""

	if !h.userSubscribedLocked(sess.user.ID, roomID) {
		room.removeMember(sess.user.ID)
	}

	h.broadcastRoomLocked(roomID, EventRoomUsers, RoomUsersPayload{
		RoomID: roomID,
		Users:  room.memberIDs(),
	})
}

// notifyOfflineMembersLocked queues a notification for every offline member
// of the room, the whole user being offline rather than any one connection.
func (h *Hub) notifyOfflineMembersLocked(room *Room, sender, content string) {
	for memberID := range room.members {
		member, ok := h.users[memberID]
		if !ok || member.Online {
			continue
		}

		h.notifications[memberID] = append(h.notifications[memberID], Notification{
			Kind:      "new_message",
			RoomID:    room.info.ID,
			Sender:    sender,
			Preview:   truncatePreview(content),
			Timestamp: time.Now(),
		})
	}
}

// broadcastTypingLocked recomputes the distinct usernames typing in roomID
// and broadcasts the full list to the room's subscribers.
func (h *Hub) broadcastTypingLocked(roomID string) {
	seen := make(map[string]struct{})
	names := make([]string, 0)

	for _, entry := range h.typing {
		if entry.roomID != roomID {
			continue
		}
		if _, dup := seen[entry.username]; dup {
			continue
		}
		seen[entry.username] = struct{}{}
		names = append(names, entry.username)
	}

	h.broadcastRoomLocked(roomID, EventTypingUsers, TypingUsersPayload{
		RoomID: roomID,
		Users:  names,
	})
}

// rosterLocked copies the full user directory for a roster broadcast.
func (h *Hub) rosterLocked() []user.User {
	roster := make([]user.User, 0, len(h.userOrder))
	for _, id := range h.userOrder {
		roster = append(roster, *h.users[id])
	}
	return roster
}

// broadcastAllLocked delivers an event to every connection, encoded once.
func (h *Hub) broadcastAllLocked(t EventType, payload any) {
	data, err := encodeEvent(t, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(t)).Msg("Error encoding broadcast")
		return
	}

	for _, s := range h.sessions {
		s.enqueue(data, t)
	}
}

// broadcastRoomLocked delivers an event to the snapshot of connections
// currently subscribed to roomID.
func (h *Hub) broadcastRoomLocked(roomID string, t EventType, payload any) {
	data, err := encodeEvent(t, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(t)).Msg("Error encoding broadcast")
		return
	}

	for _, s := range h.sessions {
		if s.room == roomID {
			s.enqueue(data, t)
		}
	}
}

// sendToUserLocked delivers an event to every live session bound to userID.
func (h *Hub) sendToUserLocked(userID string, t EventType, payload any) {
	data, err := encodeEvent(t, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(t)).Msg("Error encoding unicast")
		return
	}

	for _, s := range h.sessions {
		if s.user != nil && s.user.ID == userID {
			s.enqueue(data, t)
		}
	}
}
