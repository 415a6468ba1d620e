package domain

// WebSocket message types from client.
const (
	MsgTypePing           = "ping"
	MsgTypeHello          = "hello"
	MsgTypeChat           = "chat"
	MsgTypeMemoryAdd      = "memory.add"
	MsgTypeMemoryRemove   = "memory.remove"
	MsgTypeMemoryToggle   = "memory.toggle"
	MsgTypeSettingsUpdate = "settings.update"
	MsgTypeArtifactCreate = "artifact.create"
	MsgTypeArtifactDelete = "artifact.delete"
	MsgTypeArtifactGet    = "artifact.get"
	MsgTypeArtifactList   = "artifact.list"
)

// WebSocket message types to client.
const (
	MsgTypePong            = "pong"
	MsgTypePresence        = "presence"
	MsgTypeMemoryUpdate    = "memory_update"
	MsgTypeArtifactIndex   = "artifact_list"
	MsgTypeArtifactCreated = "artifact_created"
	MsgTypeArtifactDeleted = "artifact_deleted"
	MsgTypeArtifactDetail  = "artifact_detail"
	MsgTypeSettings        = "settings_update"
	MsgTypeExport          = "export"
	MsgTypeClearChat       = "clear_chat"
)

// Artifact creation modes.
const (
	ArtifactModeManual = "manual"
	ArtifactModeAI     = "ai"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Inbound is any decoded client frame.
type Inbound interface {
	MessageType() string
}

// Client -> Server messages

type PingMessage struct{}

type HelloMessage struct {
	ClientID string `json:"clientId" validate:"max=128"`
	User     string `json:"user" validate:"notblank,max=64"`
}

type ChatMessage struct {
	User string `json:"user" validate:"notblank,max=64"`
	Text string `json:"text" validate:"notblank,max=2000"`
}

type MemoryAddMessage struct {
	Kind string `json:"kind" validate:"oneof=memories todos"`
	Text string `json:"text" validate:"notblank,max=2000"`
}

type MemoryRemoveMessage struct {
	Kind  string `json:"kind" validate:"oneof=memories todos"`
	Index *int   `json:"index" validate:"required"`
}

type MemoryToggleMessage struct {
	Index *int `json:"index" validate:"required"`
}

type SettingsUpdateMessage struct {
	Settings SettingsPatch `json:"settings"`
}

type ArtifactCreateMessage struct {
	Mode         string `json:"mode" validate:"oneof=manual ai"`
	ArtifactType string `json:"artifactType" validate:"omitempty,oneof=summary plan notes custom"`
	Title        string `json:"title" validate:"max=200"`
	Content      string `json:"content" validate:"max=100000"`
	User         string `json:"user" validate:"notblank,max=64"`
}

type ArtifactDeleteMessage struct {
	ID string `json:"id" validate:"notblank,max=200"`
}

type ArtifactGetMessage struct {
	ID string `json:"id" validate:"notblank,max=200"`
}

type ArtifactListMessage struct{}

func (PingMessage) MessageType() string           { return MsgTypePing }
func (HelloMessage) MessageType() string          { return MsgTypeHello }
func (ChatMessage) MessageType() string           { return MsgTypeChat }
func (MemoryAddMessage) MessageType() string      { return MsgTypeMemoryAdd }
func (MemoryRemoveMessage) MessageType() string   { return MsgTypeMemoryRemove }
func (MemoryToggleMessage) MessageType() string   { return MsgTypeMemoryToggle }
func (SettingsUpdateMessage) MessageType() string { return MsgTypeSettingsUpdate }
func (ArtifactCreateMessage) MessageType() string { return MsgTypeArtifactCreate }
func (ArtifactDeleteMessage) MessageType() string { return MsgTypeArtifactDelete }
func (ArtifactGetMessage) MessageType() string    { return MsgTypeArtifactGet }
func (ArtifactListMessage) MessageType() string   { return MsgTypeArtifactList }

// Server -> Client messages

type PongMessage struct {
	Type string `json:"type"`
}

type ChatOut struct {
	Type string `json:"type"`
	User string `json:"user"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

type PresenceMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type MemoryUpdateMessage struct {
	Type   string       `json:"type"`
	Pinned PinnedMemory `json:"pinned"`
}

type ArtifactIndexMessage struct {
	Type  string            `json:"type"`
	Items []ArtifactSummary `json:"items"`
}

type ArtifactCreatedMessage struct {
	Type     string   `json:"type"`
	Artifact Artifact `json:"artifact"`
}

type ArtifactDeletedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type ArtifactDetailMessage struct {
	Type     string   `json:"type"`
	Artifact Artifact `json:"artifact"`
}

type SettingsMessage struct {
	Type     string       `json:"type"`
	Settings RoomSettings `json:"settings"`
}

type ExportMessage struct {
	Type string       `json:"type"`
	Data RoomSnapshot `json:"data"`
}

type ClearChatMessage struct {
	Type string `json:"type"`
}

func NewPong() *PongMessage {
	return &PongMessage{Type: MsgTypePong}
}

func NewChatOut(e ChatEntry) *ChatOut {
	return &ChatOut{Type: MsgTypeChat, User: e.User, Text: e.Text, TS: e.TS}
}

func NewPresence(count int) *PresenceMessage {
	return &PresenceMessage{Type: MsgTypePresence, Count: count}
}

func NewMemoryUpdate(p PinnedMemory) *MemoryUpdateMessage {
	return &MemoryUpdateMessage{Type: MsgTypeMemoryUpdate, Pinned: p}
}

func NewArtifactIndex(items []ArtifactSummary) *ArtifactIndexMessage {
	if items == nil {
		items = []ArtifactSummary{}
	}
	return &ArtifactIndexMessage{Type: MsgTypeArtifactIndex, Items: items}
}

func NewArtifactCreated(a Artifact) *ArtifactCreatedMessage {
	return &ArtifactCreatedMessage{Type: MsgTypeArtifactCreated, Artifact: a}
}

func NewArtifactDeleted(id string) *ArtifactDeletedMessage {
	return &ArtifactDeletedMessage{Type: MsgTypeArtifactDeleted, ID: id}
}

func NewArtifactDetail(a Artifact) *ArtifactDetailMessage {
	return &ArtifactDetailMessage{Type: MsgTypeArtifactDetail, Artifact: a}
}

func NewSettings(s RoomSettings) *SettingsMessage {
	return &SettingsMessage{Type: MsgTypeSettings, Settings: s}
}

func NewExport(s RoomSnapshot) *ExportMessage {
	return &ExportMessage{Type: MsgTypeExport, Data: s}
}

func NewClearChat() *ClearChatMessage {
	return &ClearChatMessage{Type: MsgTypeClearChat}
}
