package ai

import (
	"fmt"
	"strings"

	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
)

const toolGuidance = `You can change the room's pinned memory, todo list and artifacts with tools.
Only call a tool when a participant explicitly asks you to remember, add, delete, toggle, clear or create something.
Otherwise answer in plain text. Indices are 0-based and refer to the lists shown below.
Keep replies short; they are shown in a group chat.`

// SystemPrompt assembles the persona, tool guidance, pinned memory and the
// artifact index.
func SystemPrompt(settings domain.RoomSettings, pinned domain.PinnedMemory, artifacts []domain.ArtifactSummary) string {
	persona := strings.TrimSpace(settings.SystemPrompt)
	if persona == "" {
		persona = domain.DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(toolGuidance)
	b.WriteString("\n\n")
	b.WriteString(FormatPinned(pinned))
	b.WriteString("\n\nArtifacts:\n")
	if len(artifacts) == 0 {
		b.WriteString("(none)\n")
	}
	for i, a := range artifacts {
		fmt.Fprintf(&b, "%d. %q (%s, id: %s)\n", i+1, a.Title, a.Type, a.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPinned renders memories and todos with their 0-based indices.
func FormatPinned(p domain.PinnedMemory) string {
	var b strings.Builder
	b.WriteString("Memories:\n")
	if len(p.Memories) == 0 {
		b.WriteString("(none)\n")
	}
	for i, m := range p.Memories {
		fmt.Fprintf(&b, "[%d] %s\n", i, m)
	}
	b.WriteString("Todos:\n")
	if len(p.Todos) == 0 {
		b.WriteString("(none)")
	}
	for i, t := range p.Todos {
		mark := " "
		if t.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%d] [%s] %s\n", i, mark, t.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// UserPrompt renders the recent transcript followed by the triggering request.
func UserPrompt(history []domain.ChatEntry, requestedBy, prompt string) string {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	if len(history) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, e := range history {
		fmt.Fprintf(&b, "%s: %s\n", e.User, e.Text)
	}
	fmt.Fprintf(&b, "\nRequest from %s:\n%s", requestedBy, prompt)
	return b.String()
}
