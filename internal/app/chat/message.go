/*
Package chat contains the in-memory coordination core for the chat server.

This file defines the Message entity, its constructor, notification records,
and the helpers shared by room and private delivery (preview truncation and
the canonical conversation key).
*/
package chat

import (
	"sort"
	"strings"
	"time"

	"pulsechat/internal/pkg/randx"
)

// MessageKind classifies a message.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindFile    MessageKind = "file"
	KindPrivate MessageKind = "private"
)

// previewRuneLimit is the maximum number of runes kept in a notification preview.
const previewRuneLimit = 50

// Message is a chat message. It is immutable after construction except for
// ReadBy and Reactions, which only grow.
type Message struct {
	ID       string      `json:"id"`
	RoomID   string      `json:"roomId,omitempty"`
	SenderID string      `json:"senderId"`
	Sender   string      `json:"sender"`
	Content  string      `json:"content"`
	Kind     MessageKind `json:"kind"`

	// RecipientID and Recipient are set for private messages only.
	RecipientID string `json:"recipientId,omitempty"`
	Recipient   string `json:"recipient,omitempty"`

	// FileType, FileSize, and FileData are set for file messages only.
	// The payload is carried inline; no maximum size is enforced.
	FileType string `json:"fileType,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	FileData string `json:"fileData,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// ReadBy always starts out containing the sender.
	ReadBy []string `json:"readBy"`

	// Reactions maps a reaction name to the set of user ids that added it.
	Reactions map[string][]string `json:"reactions"`
}

// newMessage constructs a message with a fresh id and timestamp. The sender
// is always the first member of the read set.
func newMessage(kind MessageKind, roomID, senderID, senderName, content string) *Message {
	return &Message{
		ID:        randx.MessageID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Sender:    senderName,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now(),
		ReadBy:    []string{senderID},
		Reactions: make(map[string][]string),
	}
}

// snapshot returns a copy safe to marshal outside the hub lock. ReadBy and
// Reactions keep growing on the original, so both are copied.
func (m *Message) snapshot() Message {
	copied := *m

	copied.ReadBy = append([]string(nil), m.ReadBy...)

	copied.Reactions = make(map[string][]string, len(m.Reactions))
	for name, users := range m.Reactions {
		copied.Reactions[name] = append([]string(nil), users...)
	}

	return copied
}

// Notification is a queued record for an offline recipient. The whole queue
// is consumed at once on fetch.
type Notification struct {
	// Kind is "new_message" for room messages and "private_message" for
	// direct ones.
	Kind string `json:"kind"`

	// RoomID is set for room messages only.
	RoomID string `json:"roomId,omitempty"`

	// Sender is the username of the originating user.
	Sender string `json:"sender"`

	// Preview is the message content truncated to 50 runes.
	Preview string `json:"preview"`

	Timestamp time.Time `json:"timestamp"`
}

// truncatePreview shortens content to the preview limit, appending an
// ellipsis when anything was cut off.
func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewRuneLimit {
		return content
	}
	return string(runes[:previewRuneLimit]) + "..."
}

// conversationKey returns the canonical identifier for the private history
// between two users. It is symmetric: key(a, b) == key(b, a).
func conversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "-")
}

// addUnique appends value to set if absent. It reports whether the set changed.
func addUnique(set []string, value string) ([]string, bool) {
	for _, v := range set {
		if v == value {
			return set, false
		}
	}
	return append(set, value), true
}
