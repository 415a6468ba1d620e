package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
)

const DefaultMaxHistory = 50

type Option func(*RoomState)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RoomState) { s.now = now }
}

// WithIDGenerator overrides the artifact id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *RoomState) { s.newID = newID }
}

// RoomState is the in-memory view of a room. It is not safe for concurrent
// use; the owning room actor serializes all access.
type RoomState struct {
	roomID     string
	maxHistory int
	history    []domain.ChatEntry
	pinned     domain.PinnedMemory
	artifacts  []domain.Artifact
	settings   domain.RoomSettings
	hydrated   bool
	now        func() time.Time
	newID      func() string
}

func New(roomID string, maxHistory int, opts ...Option) *RoomState {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &RoomState{
		roomID:     roomID,
		maxHistory: maxHistory,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clear()
	return s
}

func (s *RoomState) clear() {
	s.history = []domain.ChatEntry{}
	s.pinned = domain.PinnedMemory{Memories: []string{}, Todos: []domain.Todo{}}
	s.artifacts = []domain.Artifact{}
	s.settings = domain.DefaultSettings()
}

func (s *RoomState) Hydrated() bool {
	return s.hydrated
}

// Load replaces the in-memory view with persisted values. Calling it on an
// already hydrated state is a no-op. The returned map holds re-encoded values
// for keys whose stored form was migrated and should be written back.
func (s *RoomState) Load(values map[string][]byte) (map[string][]byte, error) {
	if s.hydrated {
		return nil, nil
	}

	s.clear()
	rewrites := make(map[string][]byte)

	if raw, ok := values[KeyPinned]; ok {
		pinned, migrated, err := decodePinned(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", KeyPinned, err)
		}
		s.pinned = pinned
		if migrated {
			data, err := json.Marshal(s.pinned)
			if err != nil {
				return nil, err
			}
			rewrites[KeyPinned] = data
		}
	}

	if raw, ok := values[KeyHistory]; ok {
		var history []domain.ChatEntry
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KeyHistory, err)
		}
		if history != nil {
			s.history = history
		}
		s.trimHistory()
	}

	if raw, ok := values[KeyArtifacts]; ok {
		var artifacts []domain.Artifact
		if err := json.Unmarshal(raw, &artifacts); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KeyArtifacts, err)
		}
		if artifacts != nil {
			s.artifacts = artifacts
		}
	}

	if raw, ok := values[KeySettings]; ok {
		var patch domain.SettingsPatch
		if err := json.Unmarshal(raw, &patch); err != nil {
			return nil, fmt.Errorf("decode %s: %w", KeySettings, err)
		}
		s.settings = patch.Apply(domain.DefaultSettings())
	}

	s.hydrated = true
	return rewrites, nil
}

// Drop forgets the in-memory view so the next access re-hydrates.
func (s *RoomState) Drop() {
	s.clear()
	s.hydrated = false
}

// Encode marshals the current value stored under key.
func (s *RoomState) Encode(key string) ([]byte, error) {
	switch key {
	case KeyPinned:
		return json.Marshal(s.pinned)
	case KeyHistory:
		return json.Marshal(s.history)
	case KeyArtifacts:
		return json.Marshal(s.artifacts)
	case KeySettings:
		return json.Marshal(s.settings)
	default:
		return nil, fmt.Errorf("unknown state key %q", key)
	}
}

// EncodeAll marshals every persisted key.
func (s *RoomState) EncodeAll() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Keys))
	for _, k := range Keys {
		data, err := s.Encode(k)
		if err != nil {
			return nil, err
		}
		out[k] = data
	}
	return out, nil
}

// History

// AppendChat adds an entry stamped with the current time and trims the ring.
func (s *RoomState) AppendChat(user, text string) domain.ChatEntry {
	entry := domain.ChatEntry{User: user, Text: text, TS: domain.Millis(s.now())}
	s.history = append(s.history, entry)
	s.trimHistory()
	return entry
}

func (s *RoomState) trimHistory() {
	if over := len(s.history) - s.maxHistory; over > 0 {
		kept := make([]domain.ChatEntry, s.maxHistory)
		copy(kept, s.history[over:])
		s.history = kept
	}
}

func (s *RoomState) History() []domain.ChatEntry {
	out := make([]domain.ChatEntry, len(s.history))
	copy(out, s.history)
	return out
}

// RecentHistory returns at most n of the newest entries.
func (s *RoomState) RecentHistory(n int) []domain.ChatEntry {
	h := s.history
	if n >= 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]domain.ChatEntry, len(h))
	copy(out, h)
	return out
}

// Pinned memory

func (s *RoomState) Pinned() domain.PinnedMemory {
	return s.pinned.Clone()
}

func (s *RoomState) AddMemory(text string) string {
	text = strings.TrimSpace(text)
	s.pinned.Memories = append(s.pinned.Memories, text)
	return fmt.Sprintf("Added memory %d: %s", len(s.pinned.Memories)-1, text)
}

func (s *RoomState) AddTodo(text string) string {
	text = strings.TrimSpace(text)
	s.pinned.Todos = append(s.pinned.Todos, domain.Todo{Text: text})
	return fmt.Sprintf("Added todo %d: %s", len(s.pinned.Todos)-1, text)
}

// RemoveMemory deletes by position. ok is false when nothing changed.
func (s *RoomState) RemoveMemory(index int) (string, bool) {
	if index < 0 || index >= len(s.pinned.Memories) {
		return outOfRange(index, len(s.pinned.Memories), domain.KindMemories), false
	}
	text := s.pinned.Memories[index]
	s.pinned.Memories = append(s.pinned.Memories[:index], s.pinned.Memories[index+1:]...)
	return fmt.Sprintf("Deleted memory %d: %s", index, text), true
}

func (s *RoomState) RemoveTodo(index int) (string, bool) {
	if index < 0 || index >= len(s.pinned.Todos) {
		return outOfRange(index, len(s.pinned.Todos), domain.KindTodos), false
	}
	todo := s.pinned.Todos[index]
	s.pinned.Todos = append(s.pinned.Todos[:index], s.pinned.Todos[index+1:]...)
	return fmt.Sprintf("Deleted todo %d: %s", index, todo.Text), true
}

// Remove dispatches on kind ("memories" or "todos").
func (s *RoomState) Remove(kind string, index int) (string, bool) {
	switch kind {
	case domain.KindMemories:
		return s.RemoveMemory(index)
	case domain.KindTodos:
		return s.RemoveTodo(index)
	default:
		return fmt.Sprintf("Unknown list %q", kind), false
	}
}

func (s *RoomState) ToggleTodo(index int) (string, bool) {
	if index < 0 || index >= len(s.pinned.Todos) {
		return outOfRange(index, len(s.pinned.Todos), domain.KindTodos), false
	}
	t := &s.pinned.Todos[index]
	t.Done = !t.Done
	status := "not done"
	if t.Done {
		status = "done"
	}
	return fmt.Sprintf("Marked todo %d as %s: %s", index, status, t.Text), true
}

func (s *RoomState) ClearMemories() (string, bool) {
	n := len(s.pinned.Memories)
	s.pinned.Memories = []string{}
	return fmt.Sprintf("Cleared %d memories", n), n > 0
}

func (s *RoomState) ClearTodos() (string, bool) {
	n := len(s.pinned.Todos)
	s.pinned.Todos = []domain.Todo{}
	return fmt.Sprintf("Cleared %d todos", n), n > 0
}

func outOfRange(index, size int, kind string) string {
	return fmt.Sprintf("Index %d out of range (%d %s)", index, size, kind)
}

// Artifacts

// CreateArtifact stores a new artifact with a fresh id and timestamp.
func (s *RoomState) CreateArtifact(t domain.ArtifactType, title, content, createdBy string) domain.Artifact {
	a := domain.Artifact{
		ID:        s.newID(),
		Type:      t,
		Title:     strings.TrimSpace(title),
		Content:   content,
		CreatedAt: domain.Millis(s.now()),
		CreatedBy: createdBy,
	}
	s.artifacts = append(s.artifacts, a)
	return a
}

// FindArtifact matches ref against ids first, then case-insensitive titles.
func (s *RoomState) FindArtifact(ref string) (domain.Artifact, bool) {
	i := s.findArtifact(ref)
	if i < 0 {
		return domain.Artifact{}, false
	}
	return s.artifacts[i], true
}

func (s *RoomState) findArtifact(ref string) int {
	ref = strings.TrimSpace(ref)
	for i, a := range s.artifacts {
		if a.ID == ref {
			return i
		}
	}
	for i, a := range s.artifacts {
		if strings.EqualFold(a.Title, ref) {
			return i
		}
	}
	return -1
}

func (s *RoomState) DeleteArtifact(ref string) (domain.Artifact, bool) {
	i := s.findArtifact(ref)
	if i < 0 {
		return domain.Artifact{}, false
	}
	a := s.artifacts[i]
	s.artifacts = append(s.artifacts[:i], s.artifacts[i+1:]...)
	return a, true
}

func (s *RoomState) Artifacts() []domain.Artifact {
	out := make([]domain.Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

func (s *RoomState) ArtifactIndex() []domain.ArtifactSummary {
	out := make([]domain.ArtifactSummary, len(s.artifacts))
	for i, a := range s.artifacts {
		out[i] = a.Summary()
	}
	return out
}

// Settings

func (s *RoomState) Settings() domain.RoomSettings {
	return s.settings
}

func (s *RoomState) UpdateSettings(patch domain.SettingsPatch) domain.RoomSettings {
	s.settings = patch.Apply(s.settings)
	return s.settings
}

// Reset clears all four persisted values back to a fresh room.
func (s *RoomState) Reset() {
	s.clear()
	s.hydrated = true
}

func (s *RoomState) Snapshot() domain.RoomSnapshot {
	return domain.RoomSnapshot{
		RoomID:     s.roomID,
		History:    s.History(),
		Pinned:     s.Pinned(),
		Artifacts:  s.Artifacts(),
		Settings:   s.settings,
		ExportedAt: domain.Millis(s.now()),
	}
}
