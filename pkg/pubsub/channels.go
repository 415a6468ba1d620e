package pubsub

import "fmt"

// Channel naming conventions for room activity.
const (
	// ChannelRoomEvents carries everything that happens inside one room.
	ChannelRoomEvents = "room:%s:events"

	// PatternRoomEvents matches the events channel of every room.
	PatternRoomEvents = "room:*:events"
)

// Event types published by the workspace service.
const (
	EventChatPosted      = "chat.posted"
	EventAIReplied       = "ai.replied"
	EventArtifactCreated = "artifact.created"
	EventArtifactDeleted = "artifact.deleted"
	EventRoomReset       = "room.reset"
)

// RoomEventsChannel returns the channel name for a room's events.
func RoomEventsChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomID)
}

// ChatPostedPayload is published for every chat entry appended to history,
// including AI replies and system notices.
type ChatPostedPayload struct {
	User string `json:"user"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// ArtifactPayload is published when an artifact is created or deleted.
type ArtifactPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

// RoomResetPayload is published when a room's state is cleared.
type RoomResetPayload struct {
	RequestedBy string `json:"requested_by"`
}
