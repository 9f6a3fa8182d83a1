/*
Package chat contains the in-memory coordination core for the chat server.

This file defines the Room struct: a named channel with a membership set of
user ids and an ordered message log bounded to the most recent entries.
Rooms come from a fixed catalog at process start; all mutation happens under
the hub lock.
*/
package chat

const (
	// HistoryLimit bounds a room's message log. The oldest entry is evicted
	// first, with no archive of evicted entries.
	HistoryLimit = 100

	// JoinSnapshotLimit is how many log entries a joining connection receives.
	JoinSnapshotLimit = 50
)

// defaultCatalog is the fixed set of rooms created at process start. Rooms
// are not created or destroyed at runtime.
var defaultCatalog = []RoomInfo{
	{ID: "general", Name: "General", Description: "General chat room"},
	{ID: "random", Name: "Random", Description: "Random topics"},
	{ID: "help", Name: "Help & Support", Description: "Get help and support"},
}

// Room is a named channel with a bounded ordered message log and a
// membership set keyed by user id (not connection).
type Room struct {
	info RoomInfo

	members map[string]struct{}

	// log is strictly ordered by publish sequence.
	log []*Message
}

func newRoom(info RoomInfo) *Room {
	return &Room{
		info:    info,
		members: make(map[string]struct{}),
	}
}

// Info returns the room descriptor.
func (r *Room) Info() RoomInfo {
	return r.info
}

func (r *Room) addMember(userID string) {
	r.members[userID] = struct{}{}
}

func (r *Room) removeMember(userID string) {
	delete(r.members, userID)
}

// memberIDs returns the membership set as a slice. No ordering guarantee.
func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// appendMessage adds msg to the log, evicting the oldest entry once the
// log exceeds HistoryLimit.
func (r *Room) appendMessage(msg *Message) {
	r.log = append(r.log, msg)
	if len(r.log) > HistoryLimit {
		r.log = r.log[1:]
	}
}

// lastMessages returns snapshots of the most recent n log entries in
// publish order.
func (r *Room) lastMessages(n int) []Message {
	start := 0
	if len(r.log) > n {
		start = len(r.log) - n
	}

	out := make([]Message, 0, len(r.log)-start)
	for _, msg := range r.log[start:] {
		out = append(out, msg.snapshot())
	}
	return out
}

// findMessage locates a retained message by id. Evicted messages are gone.
func (r *Room) findMessage(messageID string) *Message {
	for _, msg := range r.log {
		if msg.ID == messageID {
			return msg
		}
	}
	return nil
}
