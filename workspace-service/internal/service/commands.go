package service

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/weiawesome/wes-io-live/workspace-service/internal/ai"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/hub"
)

const helpText = `Commands:
/remember <text>  pin a memory
/todo <text>      add a todo
/done <index>     toggle a todo
/forget <index>   delete a memory
/memory           show pinned memories and todos
/summarize        ask the AI for a summary artifact
/export           download the room as JSON
/reset            clear chat, memory, artifacts and settings
@ai <prompt>      ask the AI`

const summarizePrompt = "Summarize the conversation so far. Save the summary with the create_artifact tool " +
	"using type \"summary\", then reply with a one-line confirmation."

// interpret acts on slash commands and AI mentions in a chat line that has
// already been broadcast.
func (r *Room) interpret(c *hub.Client, user, text string) {
	if prompt, ok := aiMention(text); ok {
		if prompt == "" {
			r.reply(c, "Usage: @ai <prompt>")
			return
		}
		r.triggerAI(user, prompt)
		return
	}

	if !strings.HasPrefix(text, "/") {
		if r.state.Settings().AIAutoRespond && !r.aiRunning.Load() {
			r.triggerAI(user, text)
		}
		return
	}

	cmd, arg := splitCommand(text)
	switch cmd {
	case "/help":
		r.reply(c, helpText)

	case "/remember":
		if arg == "" {
			r.reply(c, "Usage: /remember <text>")
			return
		}
		r.addMemory(arg)
		r.systemNotice(fmt.Sprintf("%s pinned a memory: %s", user, arg))

	case "/todo":
		if arg == "" {
			r.reply(c, "Usage: /todo <text>")
			return
		}
		r.addTodo(arg)
		r.systemNotice(fmt.Sprintf("%s added a todo: %s", user, arg))

	case "/done":
		index, err := strconv.Atoi(arg)
		if err != nil {
			r.reply(c, "Usage: /done <index>")
			return
		}
		msg, ok := r.toggleTodo(index)
		if !ok {
			r.reply(c, msg)
			return
		}
		r.systemNotice(msg)

	case "/forget":
		index, err := strconv.Atoi(arg)
		if err != nil {
			r.reply(c, "Usage: /forget <index>")
			return
		}
		msg, ok := r.removePinned(domain.KindMemories, index)
		if !ok {
			r.reply(c, msg)
			return
		}
		r.systemNotice(msg)

	case "/memory":
		r.reply(c, "Pinned memory\n"+ai.FormatPinned(r.state.Pinned()))

	case "/export":
		r.hub.Send(c, domain.NewExport(r.state.Snapshot()))

	case "/reset":
		r.reset(user)

	case "/summarize":
		r.triggerAI(user, summarizePrompt)

	default:
		r.reply(c, fmt.Sprintf("Unknown command %s. Type /help for the list.", cmd))
	}
}

func splitCommand(text string) (string, string) {
	cmd, arg, _ := strings.Cut(text, " ")
	return cmd, strings.TrimSpace(arg)
}

// aiMention reports whether text starts with an @ai mention and returns the
// prompt that follows it.
func aiMention(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, "@ai")
	if !ok {
		return "", false
	}
	if rest != "" && !unicode.IsSpace(rune(rest[0])) && rest[0] != ':' && rest[0] != ',' {
		return "", false
	}
	rest = strings.TrimLeft(rest, ":,")
	return strings.TrimSpace(rest), true
}

func artifactPrompt(kind domain.ArtifactType, title, instructions string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s artifact with the create_artifact tool", kind)
	if t := strings.TrimSpace(title); t != "" {
		fmt.Fprintf(&b, " titled %q", t)
	} else {
		b.WriteString(" with a fitting title")
	}
	b.WriteString(", based on the conversation so far.")
	if i := strings.TrimSpace(instructions); i != "" {
		b.WriteString("\nInstructions: ")
		b.WriteString(i)
	}
	b.WriteString("\nThen reply with a one-line confirmation.")
	return b.String()
}

func notFoundArtifact(ref string) string {
	return fmt.Sprintf("No artifact found matching %q", ref)
}
