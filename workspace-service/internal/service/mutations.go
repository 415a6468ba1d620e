package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/audit"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
)

func (r *Room) broadcast(msg interface{}) {
	if err := r.hub.Broadcast(msg); err != nil {
		r.logger.Error().Err(err).Msg("failed to broadcast")
	}
}

// appendChat stores, broadcasts and counts a history entry.
func (r *Room) appendChat(user, text string) domain.ChatEntry {
	e := r.postChat(user, text)
	r.persist.HistoryAppended()
	return e
}

// appendChatFlushed writes history right away instead of counting the append.
func (r *Room) appendChatFlushed(user, text string) domain.ChatEntry {
	e := r.postChat(user, text)
	r.persist.FlushHistory()
	return e
}

func (r *Room) postChat(user, text string) domain.ChatEntry {
	e := r.state.AppendChat(user, text)
	r.broadcast(domain.NewChatOut(e))
	r.publish(pubsub.EventChatPosted, pubsub.ChatPostedPayload{User: e.User, Text: e.Text, TS: e.TS})
	return e
}

// systemNotice is a room-wide system line kept in history.
func (r *Room) systemNotice(text string) {
	r.appendChat(domain.UserSystem, text)
}

// reply is a system line for one connection only; it is not stored.
func (r *Room) reply(c *hub.Client, text string) {
	r.hub.Send(c, domain.NewChatOut(domain.ChatEntry{
		User: domain.UserSystem,
		Text: text,
		TS:   domain.Millis(r.now()),
	}))
}

func (r *Room) pinnedChanged() {
	r.persist.PinnedChanged()
	r.broadcast(domain.NewMemoryUpdate(r.state.Pinned()))
}

func (r *Room) addMemory(text string) string {
	msg := r.state.AddMemory(text)
	r.pinnedChanged()
	return msg
}

func (r *Room) addTodo(text string) string {
	msg := r.state.AddTodo(text)
	r.pinnedChanged()
	return msg
}

func (r *Room) removePinned(kind string, index int) (string, bool) {
	msg, ok := r.state.Remove(kind, index)
	if ok {
		r.pinnedChanged()
	}
	return msg, ok
}

func (r *Room) toggleTodo(index int) (string, bool) {
	msg, ok := r.state.ToggleTodo(index)
	if ok {
		r.pinnedChanged()
	}
	return msg, ok
}

func (r *Room) clearMemories() string {
	msg, ok := r.state.ClearMemories()
	if ok {
		r.pinnedChanged()
	}
	return msg
}

func (r *Room) clearTodos() string {
	msg, ok := r.state.ClearTodos()
	if ok {
		r.pinnedChanged()
	}
	return msg
}

func (r *Room) createArtifact(kind domain.ArtifactType, title, content, createdBy string) domain.Artifact {
	a := r.state.CreateArtifact(kind, title, content, createdBy)
	r.persist.ArtifactsChanged()
	r.broadcast(domain.NewArtifactCreated(a))
	r.broadcast(domain.NewArtifactIndex(r.state.ArtifactIndex()))

	r.publish(pubsub.EventArtifactCreated, pubsub.ArtifactPayload{
		ID:        a.ID,
		Type:      string(a.Type),
		Title:     a.Title,
		CreatedBy: a.CreatedBy,
	})
	audit.LogWithTarget(r.ctx, audit.ActionArtifactCreate, createdBy, a.ID, "artifact created")
	return a
}

func (r *Room) deleteArtifact(ref, user string) (domain.Artifact, bool) {
	a, ok := r.state.DeleteArtifact(ref)
	if !ok {
		return domain.Artifact{}, false
	}
	r.persist.ArtifactsChanged()
	r.broadcast(domain.NewArtifactDeleted(a.ID))
	r.broadcast(domain.NewArtifactIndex(r.state.ArtifactIndex()))
	r.publish(pubsub.EventArtifactDeleted, pubsub.ArtifactPayload{ID: a.ID, Title: a.Title})
	audit.LogWithTarget(r.ctx, audit.ActionArtifactDelete, user, a.ID, "artifact deleted")
	return a, true
}

func (r *Room) updateSettings(patch domain.SettingsPatch, user string) {
	s := r.state.UpdateSettings(patch)
	r.persist.SettingsChanged()
	r.broadcast(domain.NewSettings(s))
	audit.LogWithDetail(r.ctx, audit.ActionSettingsUpdate, user, fmt.Sprintf("ai_auto_respond=%t", s.AIAutoRespond), "room settings updated")
}

// reset clears all four values, persists them in one batch and tells every
// client to start over.
func (r *Room) reset(user string) {
	r.state.Reset()
	r.persist.Reset()

	r.broadcast(domain.NewClearChat())
	r.broadcast(domain.NewMemoryUpdate(r.state.Pinned()))
	r.broadcast(domain.NewArtifactIndex(r.state.ArtifactIndex()))
	r.broadcast(domain.NewSettings(r.state.Settings()))

	r.publish(pubsub.EventRoomReset, pubsub.RoomResetPayload{RequestedBy: user})
	audit.Log(r.ctx, audit.ActionReset, user, "room reset")
}

// publish fans an event out to the configured bus without blocking the actor.
func (r *Room) publish(eventType string, payload interface{}) {
	if _, ok := r.publisher.(pubsub.NopPublisher); ok {
		return
	}
	event, err := pubsub.NewEvent(eventType, r.id, payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to encode room event")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.publisher.Publish(ctx, pubsub.RoomEventsChannel(r.id), event); err != nil {
			r.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish room event")
		}
	}()
}

// toolTarget exposes room mutations to the AI. Its methods run on the actor.
type toolTarget struct {
	r *Room
}

func (t toolTarget) AddMemory(text string) string {
	return t.r.addMemory(text)
}

func (t toolTarget) DeleteMemory(index int) string {
	msg, _ := t.r.removePinned(domain.KindMemories, index)
	return msg
}

func (t toolTarget) AddTodo(text string) string {
	return t.r.addTodo(text)
}

func (t toolTarget) DeleteTodo(index int) string {
	msg, _ := t.r.removePinned(domain.KindTodos, index)
	return msg
}

func (t toolTarget) ToggleTodo(index int) string {
	msg, _ := t.r.toggleTodo(index)
	return msg
}

func (t toolTarget) CreateArtifact(artifactType, title, content string) string {
	a := t.r.createArtifact(domain.ParseArtifactType(artifactType), title, content, domain.UserAI)
	return fmt.Sprintf("Created %s artifact %q (id: %s)", a.Type, a.Title, a.ID)
}

func (t toolTarget) DeleteArtifact(ref string) string {
	a, ok := t.r.deleteArtifact(ref, domain.UserAI)
	if !ok {
		return notFoundArtifact(ref)
	}
	return fmt.Sprintf("Deleted artifact %q", a.Title)
}

func (t toolTarget) ClearMemories() string {
	return t.r.clearMemories()
}

func (t toolTarget) ClearTodos() string {
	return t.r.clearTodos()
}
