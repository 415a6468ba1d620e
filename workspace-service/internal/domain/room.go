package domain

import "time"

// Authors used for entries that do not come from a participant.
const (
	UserSystem = "System"
	UserAI     = "AI"
)

// Pinned memory list kinds.
const (
	KindMemories = "memories"
	KindTodos    = "todos"
)

// DefaultSystemPrompt is the persona used when a room has not configured one.
const DefaultSystemPrompt = "You are a helpful AI participant in a shared workspace room. " +
	"Be concise, friendly, and practical."

// ChatEntry is one line of room history.
type ChatEntry struct {
	User string `json:"user"`
	Text string `json:"text"`
	TS   int64  `json:"ts"` // unix millis
}

// Todo is a checkable pinned item.
type Todo struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// PinnedMemory is the durable list of notes and todos shared with the AI.
type PinnedMemory struct {
	Memories []string `json:"memories"`
	Todos    []Todo   `json:"todos"`
}

// Clone returns a deep copy that never aliases the receiver's slices.
func (p PinnedMemory) Clone() PinnedMemory {
	out := PinnedMemory{
		Memories: make([]string, len(p.Memories)),
		Todos:    make([]Todo, len(p.Todos)),
	}
	copy(out.Memories, p.Memories)
	copy(out.Todos, p.Todos)
	return out
}

// ArtifactType classifies generated or authored documents.
type ArtifactType string

const (
	ArtifactTypeSummary ArtifactType = "summary"
	ArtifactPlan        ArtifactType = "plan"
	ArtifactNotes       ArtifactType = "notes"
	ArtifactCustom      ArtifactType = "custom"
)

// ParseArtifactType maps free text onto a known type; anything unknown is custom.
func ParseArtifactType(s string) ArtifactType {
	switch ArtifactType(s) {
	case ArtifactTypeSummary, ArtifactPlan, ArtifactNotes:
		return ArtifactType(s)
	default:
		return ArtifactCustom
	}
}

// Artifact is a named markdown document kept alongside the chat.
type Artifact struct {
	ID        string       `json:"id"`
	Type      ArtifactType `json:"type"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	CreatedAt int64        `json:"createdAt"` // unix millis
	CreatedBy string       `json:"createdBy"`
}

// ArtifactSummary is the index entry pushed in artifact_list frames.
type ArtifactSummary struct {
	ID        string       `json:"id"`
	Type      ArtifactType `json:"type"`
	Title     string       `json:"title"`
	CreatedAt int64        `json:"createdAt"`
	CreatedBy string       `json:"createdBy"`
}

// Summary drops the content.
func (a Artifact) Summary() ArtifactSummary {
	return ArtifactSummary{
		ID:        a.ID,
		Type:      a.Type,
		Title:     a.Title,
		CreatedAt: a.CreatedAt,
		CreatedBy: a.CreatedBy,
	}
}

// RoomSettings are the per-room knobs editable from the settings panel.
type RoomSettings struct {
	SystemPrompt  string `json:"systemPrompt"`
	AIAutoRespond bool   `json:"aiAutoRespond"`
}

// DefaultSettings returns the settings of a fresh room.
func DefaultSettings() RoomSettings {
	return RoomSettings{SystemPrompt: DefaultSystemPrompt}
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	SystemPrompt  *string `json:"systemPrompt,omitempty" validate:"omitempty,max=4000"`
	AIAutoRespond *bool   `json:"aiAutoRespond,omitempty"`
}

// Apply merges the patch over s.
func (p SettingsPatch) Apply(s RoomSettings) RoomSettings {
	if p.SystemPrompt != nil {
		s.SystemPrompt = *p.SystemPrompt
	}
	if p.AIAutoRespond != nil {
		s.AIAutoRespond = *p.AIAutoRespond
	}
	return s
}

// RoomSnapshot is the full exported state of a room.
type RoomSnapshot struct {
	RoomID     string       `json:"roomId"`
	History    []ChatEntry  `json:"history"`
	Pinned     PinnedMemory `json:"pinned"`
	Artifacts  []Artifact   `json:"artifacts"`
	Settings   RoomSettings `json:"settings"`
	ExportedAt int64        `json:"exportedAt"`
}

// Millis converts t to the unix millisecond timestamps used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
