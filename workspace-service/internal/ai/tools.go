package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
)

// Tool names exposed to the model.
const (
	ToolAddMemory      = "add_memory"
	ToolDeleteMemory   = "delete_memory"
	ToolAddTodo        = "add_todo"
	ToolDeleteTodo     = "delete_todo"
	ToolToggleTodo     = "toggle_todo"
	ToolCreateArtifact = "create_artifact"
	ToolDeleteArtifact = "delete_artifact"
	ToolClearMemories  = "clear_memories"
	ToolClearTodos     = "clear_todos"
)

// ToolTarget is the room state surface the model can mutate. Every method
// returns a human readable outcome that is fed back to the model.
type ToolTarget interface {
	AddMemory(text string) string
	DeleteMemory(index int) string
	AddTodo(text string) string
	DeleteTodo(index int) string
	ToggleTodo(index int) string
	CreateArtifact(artifactType, title, content string) string
	DeleteArtifact(ref string) string
	ClearMemories() string
	ClearTodos() string
}

var toolDefs = []llm.Tool{
	{
		Name:        ToolAddMemory,
		Description: "Pin a fact or decision to the room's shared memory.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"The fact to remember."}},"required":["text"]}`),
	},
	{
		Name:        ToolDeleteMemory,
		Description: "Delete a pinned memory by its 0-based index.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"index":{"type":"integer","description":"0-based index of the memory."}},"required":["index"]}`),
	},
	{
		Name:        ToolAddTodo,
		Description: "Add an item to the room's todo list.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"The todo item."}},"required":["text"]}`),
	},
	{
		Name:        ToolDeleteTodo,
		Description: "Delete a todo by its 0-based index.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"index":{"type":"integer","description":"0-based index of the todo."}},"required":["index"]}`),
	},
	{
		Name:        ToolToggleTodo,
		Description: "Toggle a todo between done and not done by its 0-based index.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"index":{"type":"integer","description":"0-based index of the todo."}},"required":["index"]}`),
	},
	{
		Name:        ToolCreateArtifact,
		Description: "Create a markdown document visible to everyone in the room.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"type":{"type":"string","enum":["summary","plan","notes","custom"]},"title":{"type":"string"},"content":{"type":"string","description":"Markdown body."}},"required":["type","title","content"]}`),
	},
	{
		Name:        ToolDeleteArtifact,
		Description: "Delete an artifact by id or title (case-insensitive).",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Artifact id or title."}},"required":["id"]}`),
	},
	{
		Name:        ToolClearMemories,
		Description: "Remove every pinned memory.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	},
	{
		Name:        ToolClearTodos,
		Description: "Remove every todo.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	},
}

// Tools returns the tool schema sent with the first inference call.
func Tools() []llm.Tool {
	out := make([]llm.Tool, len(toolDefs))
	copy(out, toolDefs)
	return out
}

type toolArgs map[string]interface{}

func parseArgs(raw string) (toolArgs, error) {
	args := toolArgs{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

func (a toolArgs) str(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// index accepts JSON numbers and numeric strings.
func (a toolArgs) index(key string) (int, error) {
	switch v := a[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	default:
		return 0, fmt.Errorf("%s must be an integer", key)
	}
}

// Execute runs one tool call against target. Failures, including panics,
// become the textual result.
func Execute(target ToolTarget, call llm.ToolCall) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("Error executing %s: %v", call.Name, r)
		}
	}()

	args, err := parseArgs(call.Arguments)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", call.Name, err)
	}

	withIndex := func(fn func(int) string) string {
		i, err := args.index("index")
		if err != nil {
			return fmt.Sprintf("Error executing %s: %v", call.Name, err)
		}
		return fn(i)
	}
	withText := func(key string, fn func(string) string) string {
		text := args.str(key)
		if text == "" {
			return fmt.Sprintf("Error executing %s: %s is required", call.Name, key)
		}
		return fn(text)
	}

	switch call.Name {
	case ToolAddMemory:
		return withText("text", target.AddMemory)
	case ToolDeleteMemory:
		return withIndex(target.DeleteMemory)
	case ToolAddTodo:
		return withText("text", target.AddTodo)
	case ToolDeleteTodo:
		return withIndex(target.DeleteTodo)
	case ToolToggleTodo:
		return withIndex(target.ToggleTodo)
	case ToolCreateArtifact:
		return withText("title", func(title string) string {
			return target.CreateArtifact(args.str("type"), title, args.str("content"))
		})
	case ToolDeleteArtifact:
		return withText("id", target.DeleteArtifact)
	case ToolClearMemories:
		return target.ClearMemories()
	case ToolClearTodos:
		return target.ClearTodos()
	default:
		return "Unknown tool: " + call.Name
	}
}

// ExecuteAll runs calls sequentially and returns one result per call.
func ExecuteAll(target ToolTarget, calls []llm.ToolCall) []string {
	results := make([]string, len(calls))
	for i, call := range calls {
		results[i] = Execute(target, call)
	}
	return results
}
