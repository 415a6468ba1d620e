package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm/llmtest"
)

// recorder is a ToolTarget that logs every call.
type recorder struct {
	calls []string
}

func (r *recorder) rec(format string, args ...interface{}) string {
	s := fmt.Sprintf(format, args...)
	r.calls = append(r.calls, s)
	return "ok " + s
}

func (r *recorder) AddMemory(text string) string     { return r.rec("add_memory %s", text) }
func (r *recorder) DeleteMemory(index int) string    { return r.rec("delete_memory %d", index) }
func (r *recorder) AddTodo(text string) string       { return r.rec("add_todo %s", text) }
func (r *recorder) DeleteTodo(index int) string      { return r.rec("delete_todo %d", index) }
func (r *recorder) ToggleTodo(index int) string      { return r.rec("toggle_todo %d", index) }
func (r *recorder) DeleteArtifact(ref string) string { return r.rec("delete_artifact %s", ref) }
func (r *recorder) ClearMemories() string            { return r.rec("clear_memories") }
func (r *recorder) ClearTodos() string               { return r.rec("clear_todos") }
func (r *recorder) CreateArtifact(t, title, content string) string {
	return r.rec("create_artifact %s|%s|%s", t, title, content)
}

type panicky struct{ recorder }

func (p *panicky) ClearTodos() string { panic("boom") }

func TestToolsSchema(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 9)

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
		assert.NotEmpty(t, tool.Description)
		assert.True(t, strings.HasPrefix(string(tool.Parameters), `{"type":"object"`))
	}
	assert.ElementsMatch(t, []string{
		ToolAddMemory, ToolDeleteMemory, ToolAddTodo, ToolDeleteTodo, ToolToggleTodo,
		ToolCreateArtifact, ToolDeleteArtifact, ToolClearMemories, ToolClearTodos,
	}, names)

	for _, tool := range tools {
		if tool.Name == ToolDeleteArtifact {
			assert.Contains(t, tool.Description, "case-insensitive")
		}
	}
}

func TestExecuteCoercesArguments(t *testing.T) {
	r := &recorder{}

	cases := []struct {
		call llm.ToolCall
		want string
	}{
		{llm.ToolCall{Name: ToolAddMemory, Arguments: `{"text":" launch friday "}`}, "ok add_memory launch friday"},
		{llm.ToolCall{Name: ToolDeleteTodo, Arguments: `{"index":2}`}, "ok delete_todo 2"},
		{llm.ToolCall{Name: ToolToggleTodo, Arguments: `{"index":"1"}`}, "ok toggle_todo 1"},
		{llm.ToolCall{Name: ToolCreateArtifact, Arguments: `{"type":"plan","title":"Q3","content":"# x"}`}, "ok create_artifact plan|Q3|# x"},
		{llm.ToolCall{Name: ToolClearMemories, Arguments: ``}, "ok clear_memories"},
		{llm.ToolCall{Name: ToolDeleteMemory, Arguments: `{"index":1.5}`}, "Error executing delete_memory: index must be an integer"},
		{llm.ToolCall{Name: ToolDeleteMemory, Arguments: `{}`}, "Error executing delete_memory: index is required"},
		{llm.ToolCall{Name: ToolAddTodo, Arguments: `{"text":""}`}, "Error executing add_todo: text is required"},
		{llm.ToolCall{Name: "launch_rockets", Arguments: `{}`}, "Unknown tool: launch_rockets"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Execute(r, tc.call), tc.call.Name)
	}

	assert.Contains(t, Execute(r, llm.ToolCall{Name: ToolAddTodo, Arguments: `{not json`}), "invalid arguments")
}

func TestExecuteRecoversPanics(t *testing.T) {
	got := Execute(&panicky{}, llm.ToolCall{Name: ToolClearTodos})
	assert.Equal(t, "Error executing clear_todos: boom", got)
}

func TestSystemPromptIncludesContext(t *testing.T) {
	prompt := SystemPrompt(
		domain.RoomSettings{SystemPrompt: "You are a pirate."},
		domain.PinnedMemory{Memories: []string{"budget 10k"}, Todos: []domain.Todo{{Text: "book venue", Done: true}}},
		[]domain.ArtifactSummary{{ID: "a1", Type: domain.ArtifactPlan, Title: "Launch"}},
	)

	assert.True(t, strings.HasPrefix(prompt, "You are a pirate."))
	assert.Contains(t, prompt, "[0] budget 10k")
	assert.Contains(t, prompt, "[0] [x] book venue")
	assert.Contains(t, prompt, `1. "Launch" (plan, id: a1)`)

	fallback := SystemPrompt(domain.RoomSettings{}, domain.PinnedMemory{}, nil)
	assert.True(t, strings.HasPrefix(fallback, domain.DefaultSystemPrompt))
}

func TestUserPrompt(t *testing.T) {
	got := UserPrompt([]domain.ChatEntry{{User: "alice", Text: "hi"}, {User: "AI", Text: "hello"}}, "bob", "what's up?")
	assert.Equal(t, "Recent conversation:\nalice: hi\nAI: hello\n\nRequest from bob:\nwhat's up?", got)
}

func localRunner(target ToolTarget) ToolRunner {
	return func(_ context.Context, calls []llm.ToolCall) ([]string, error) {
		return ExecuteAll(target, calls), nil
	}
}

func TestRunPlainReply(t *testing.T) {
	client := llmtest.New(llmtest.Text("  hello there  "))
	o := NewOrchestrator(client, time.Second, zerolog.Nop())

	reply, err := o.Run(context.Background(), Turn{System: "sys", Prompt: "hi"}, localRunner(&recorder{}))
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Tools, 9)
	assert.Equal(t, "sys", reqs[0].System)
}

func TestRunToolRound(t *testing.T) {
	client := llmtest.New(
		llmtest.Calls(
			llm.ToolCall{Name: ToolAddTodo, Arguments: `{"text":"write docs"}`},
			llm.ToolCall{ID: "x", Name: ToolClearMemories},
		),
		llmtest.Text("Done."),
	)
	r := &recorder{}
	o := NewOrchestrator(client, time.Second, zerolog.Nop())

	reply, err := o.Run(context.Background(), Turn{Prompt: "add a todo"}, localRunner(r))
	require.NoError(t, err)
	assert.Equal(t, "Done.", reply)
	assert.Equal(t, []string{"add_todo write docs", "clear_memories"}, r.calls)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[1].Tools)

	msgs := reqs[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "call_0", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, llm.Message{Role: llm.RoleTool, ToolCallID: "call_0", Content: "ok add_todo write docs"}, msgs[2])
	assert.Equal(t, "x", msgs[3].ToolCallID)
}

func TestRunEmptyResponses(t *testing.T) {
	o := NewOrchestrator(llmtest.New(llmtest.Text("   ")), time.Second, zerolog.Nop())
	_, err := o.Run(context.Background(), Turn{}, localRunner(&recorder{}))
	assert.ErrorIs(t, err, ErrEmptyAIResponse)

	o = NewOrchestrator(llmtest.New(
		llmtest.Calls(llm.ToolCall{Name: ToolClearTodos}),
		llmtest.Text(""),
	), time.Second, zerolog.Nop())
	_, err = o.Run(context.Background(), Turn{}, localRunner(&recorder{}))
	assert.ErrorIs(t, err, ErrEmptyAIResponse)
}

func TestRunPropagatesFailures(t *testing.T) {
	boom := errors.New("upstream down")
	o := NewOrchestrator(llmtest.New(llmtest.Step{Err: boom}), time.Second, zerolog.Nop())
	_, err := o.Run(context.Background(), Turn{}, localRunner(&recorder{}))
	assert.ErrorIs(t, err, boom)

	gate := make(chan struct{})
	defer close(gate)
	o = NewOrchestrator(llmtest.New(llmtest.Step{Gate: gate}), 20*time.Millisecond, zerolog.Nop())
	_, err = o.Run(context.Background(), Turn{}, localRunner(&recorder{}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
