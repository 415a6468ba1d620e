package service

import (
	"strings"

	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
)

func (r *Room) dispatch(c *hub.Client, msg domain.Inbound) {
	if err := r.ensureHydrated(); err != nil {
		r.logger.Error().Err(err).Str(log.FieldFrameType, msg.MessageType()).Msg("dropping frame, room state unavailable")
		return
	}
	r.touch()

	switch m := msg.(type) {
	case *domain.HelloMessage:
		r.handleHello(c, m)
	case *domain.ChatMessage:
		r.handleChat(c, m)
	case *domain.MemoryAddMessage:
		r.handleMemoryAdd(m)
	case *domain.MemoryRemoveMessage:
		r.handleMemoryRemove(c, m)
	case *domain.MemoryToggleMessage:
		r.handleMemoryToggle(c, m)
	case *domain.SettingsUpdateMessage:
		r.updateSettings(m.Settings, c.Session.GetDisplayName())
	case *domain.ArtifactCreateMessage:
		r.handleArtifactCreate(c, m)
	case *domain.ArtifactDeleteMessage:
		r.handleArtifactDelete(c, m)
	case *domain.ArtifactGetMessage:
		r.handleArtifactGet(c, m)
	case domain.ArtifactListMessage:
		r.hub.Send(c, domain.NewArtifactIndex(r.state.ArtifactIndex()))
	default:
		r.logger.Debug().Str(log.FieldFrameType, msg.MessageType()).Msg("unhandled frame")
	}
}

// handleHello records identity and pushes the full room snapshot.
func (r *Room) handleHello(c *hub.Client, m *domain.HelloMessage) {
	r.hub.Identify(c, m.ClientID, strings.TrimSpace(m.User))

	for _, e := range r.state.History() {
		r.hub.Send(c, domain.NewChatOut(e))
	}
	r.hub.Send(c, domain.NewMemoryUpdate(r.state.Pinned()))
	r.hub.Send(c, domain.NewArtifactIndex(r.state.ArtifactIndex()))
	r.hub.Send(c, domain.NewSettings(r.state.Settings()))
	r.hub.Send(c, domain.NewPresence(r.hub.Count()))
}

// handleChat broadcasts the entry before interpreting any command in it.
func (r *Room) handleChat(c *hub.Client, m *domain.ChatMessage) {
	user := strings.TrimSpace(m.User)
	text := strings.TrimSpace(m.Text)
	if c.Session.GetDisplayName() == "" {
		c.Session.Identify("", user)
	}

	r.appendChat(user, text)
	r.interpret(c, user, text)
}

func (r *Room) handleMemoryAdd(m *domain.MemoryAddMessage) {
	if m.Kind == domain.KindTodos {
		r.addTodo(m.Text)
		return
	}
	r.addMemory(m.Text)
}

func (r *Room) handleMemoryRemove(c *hub.Client, m *domain.MemoryRemoveMessage) {
	if msg, ok := r.removePinned(m.Kind, *m.Index); !ok {
		r.reply(c, msg)
	}
}

func (r *Room) handleMemoryToggle(c *hub.Client, m *domain.MemoryToggleMessage) {
	if msg, ok := r.toggleTodo(*m.Index); !ok {
		r.reply(c, msg)
	}
}

func (r *Room) handleArtifactCreate(c *hub.Client, m *domain.ArtifactCreateMessage) {
	user := strings.TrimSpace(m.User)
	kind := domain.ParseArtifactType(m.ArtifactType)

	if m.Mode == domain.ArtifactModeAI {
		r.triggerAI(user, artifactPrompt(kind, m.Title, m.Content))
		return
	}

	if strings.TrimSpace(m.Title) == "" {
		r.reply(c, "Artifact title is required.")
		return
	}
	r.createArtifact(kind, m.Title, m.Content, user)
}

func (r *Room) handleArtifactDelete(c *hub.Client, m *domain.ArtifactDeleteMessage) {
	if _, ok := r.deleteArtifact(m.ID, c.Session.GetDisplayName()); !ok {
		r.reply(c, notFoundArtifact(m.ID))
	}
}

func (r *Room) handleArtifactGet(c *hub.Client, m *domain.ArtifactGetMessage) {
	a, ok := r.state.FindArtifact(m.ID)
	if !ok {
		r.reply(c, notFoundArtifact(m.ID))
		return
	}
	r.hub.Send(c, domain.NewArtifactDetail(a))
}
