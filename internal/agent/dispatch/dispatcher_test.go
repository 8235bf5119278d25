package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcgis-mcp/server/internal/agent/model"
	"github.com/arcgis-mcp/server/internal/agent/repo"
	"github.com/arcgis-mcp/server/internal/agent/tools"
	"github.com/arcgis-mcp/server/internal/arcgis"
)

// fakeChatModel replays scripted replies and records what it was asked.
type fakeChatModel struct {
	replies  []*schema.Message
	err      error
	bound    []*schema.ToolInfo
	received [][]*schema.Message
	idx      int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.received = append(f.received, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.replies) {
		return nil, fmt.Errorf("no scripted reply %d", f.idx)
	}
	reply := f.replies[f.idx]
	f.idx++
	return reply, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeChatModel) WithTools(ts []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.bound = ts
	return f, nil
}

type countingResolver struct {
	calls int
}

func (r *countingResolver) SearchByTitle(ctx context.Context, name string) arcgis.LookupResult {
	r.calls++
	return arcgis.LookupResult{
		Status:   arcgis.StatusSuccess,
		Strategy: arcgis.StrategyTitleSearch,
		ItemURL:  "https://example.test/items/item-1/FeatureServer",
	}
}

func toolCallReply(name, arguments string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "call_abc", Function: schema.FunctionCall{Name: name, Arguments: arguments}},
		},
	}
}

func newTestDispatcher(t *testing.T, cm *fakeChatModel, resolver tools.LayerResolver) (*Dispatcher, *repo.MemoryConversationRepository) {
	t.Helper()
	if resolver == nil {
		resolver = &countingResolver{}
	}
	registry, err := tools.NewQueryRegistry(resolver)
	require.NoError(t, err)

	store := repo.NewMemoryConversationRepository()
	d, err := New(cm, registry, store, "", "gemini-2.5-pro")
	require.NoError(t, err)
	return d, store
}

func TestNewBindsRegistryToolsToModel(t *testing.T) {
	cm := &fakeChatModel{}
	newTestDispatcher(t, cm, nil)

	require.Len(t, cm.bound, 2)
	assert.Equal(t, tools.ToolLoadLayer, cm.bound[0].Name)
	assert.Equal(t, tools.ToolCreateRecord, cm.bound[1].Name)
}

func TestDispatchTextReply(t *testing.T) {
	cm := &fakeChatModel{replies: []*schema.Message{schema.AssistantMessage("Hi! How can I help?", nil)}}
	d, store := newTestDispatcher(t, cm, nil)

	env := d.Dispatch(context.Background(), "s1", "hello")

	assert.Equal(t, model.EnvelopeText, env.Type)
	assert.Equal(t, http.StatusOK, env.HTTPStatus())

	var text string
	require.NoError(t, json.Unmarshal(env.Data, &text))
	assert.Equal(t, "Hi! How can I help?", text)

	// Text-only cycle contributes two turns.
	n, err := store.MessageCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDispatchToolCycle(t *testing.T) {
	resolver := &countingResolver{}
	cm := &fakeChatModel{replies: []*schema.Message{
		toolCallReply(tools.ToolLoadLayer, `{"layer_name":"Bozeman"}`),
	}}
	d, store := newTestDispatcher(t, cm, resolver)

	env := d.Dispatch(context.Background(), "s1", "load the Bozeman layer")

	assert.Equal(t, model.EnvelopeToolResponse, env.Type)
	assert.Equal(t, tools.ToolLoadLayer, env.Tool)
	assert.Equal(t, http.StatusOK, env.HTTPStatus())
	assert.Equal(t, 1, resolver.calls)

	var payload tools.LoadLayerOutput
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, arcgis.StatusSuccess, payload.Status)
	assert.Equal(t, "Bozeman", payload.LayerName)
	assert.Equal(t, "https://example.test/items/item-1/FeatureServer", payload.LayerURL)

	// Tool-invoking cycle contributes four turns: user, proposal, tool
	// result, closing assistant message.
	history, err := store.LoadHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, schema.User, history.Messages[0].Role)
	assert.Equal(t, schema.Assistant, history.Messages[1].Role)
	require.Len(t, history.Messages[1].ToolCalls, 1)
	assert.Equal(t, schema.Tool, history.Messages[2].Role)
	assert.Equal(t, "call_abc", history.Messages[2].ToolCallID)
	assert.Equal(t, schema.Assistant, history.Messages[3].Role)
}

func TestDispatchUnknownTool(t *testing.T) {
	resolver := &countingResolver{}
	cm := &fakeChatModel{replies: []*schema.Message{
		toolCallReply("delete_everything", `{}`),
	}}
	d, store := newTestDispatcher(t, cm, resolver)

	env := d.Dispatch(context.Background(), "s1", "wipe it all")

	assert.Equal(t, model.EnvelopeError, env.Type)
	require.NotNil(t, env.Err)
	assert.Equal(t, model.CodeUnknownTool, env.Err.Code)
	assert.Equal(t, "Unknown tool requested: delete_everything", env.Err.Message)
	assert.Equal(t, http.StatusBadRequest, env.HTTPStatus())

	// No handler side effect occurred.
	assert.Equal(t, 0, resolver.calls)

	n, err := store.MessageCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDispatchInvalidArguments(t *testing.T) {
	resolver := &countingResolver{}
	cm := &fakeChatModel{replies: []*schema.Message{
		toolCallReply(tools.ToolLoadLayer, `{"wrong_key":"Bozeman"}`),
	}}
	d, _ := newTestDispatcher(t, cm, resolver)

	env := d.Dispatch(context.Background(), "s1", "load something")

	require.NotNil(t, env.Err)
	assert.Equal(t, model.CodeInvalidArguments, env.Err.Code)
	assert.Equal(t, http.StatusBadRequest, env.HTTPStatus())
	assert.Equal(t, 0, resolver.calls)
}

func TestDispatchModelFailureAppendsNothing(t *testing.T) {
	cm := &fakeChatModel{err: errors.New("upstream unavailable")}
	d, store := newTestDispatcher(t, cm, nil)

	env := d.Dispatch(context.Background(), "s1", "hello")

	require.NotNil(t, env.Err)
	assert.Equal(t, model.CodeInternal, env.Err.Code)
	assert.Equal(t, http.StatusInternalServerError, env.HTTPStatus())

	n, err := store.MessageCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// panicTool simulates a broken registered handler.
type panicTool struct {
	info *schema.ToolInfo
}

func (p *panicTool) Info(ctx context.Context) (*schema.ToolInfo, error) { return p.info, nil }

func (p *panicTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	panic("handler exploded")
}

func TestDispatchHandlerPanicBecomesInternalError(t *testing.T) {
	info := &schema.ToolInfo{Name: "broken_tool", ParamsOneOf: schema.NewParamsOneOfByParams(nil)}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&tools.Entry{Info: info, Tool: &panicTool{info: info}}))

	cm := &fakeChatModel{replies: []*schema.Message{toolCallReply("broken_tool", `{}`)}}
	store := repo.NewMemoryConversationRepository()
	d, err := New(cm, registry, store, "", "gemini-2.5-pro")
	require.NoError(t, err)

	env := d.Dispatch(context.Background(), "s1", "break it")

	require.NotNil(t, env.Err)
	assert.Equal(t, model.CodeInternal, env.Err.Code)
	assert.Equal(t, http.StatusInternalServerError, env.HTTPStatus())
}

func TestDispatchInspectsOnlyFirstToolCall(t *testing.T) {
	resolver := &countingResolver{}
	reply := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "c1", Function: schema.FunctionCall{Name: tools.ToolLoadLayer, Arguments: `{"layer_name":"Bozeman"}`}},
			{ID: "c2", Function: schema.FunctionCall{Name: tools.ToolCreateRecord, Arguments: `{"layer_name":"Bozeman"}`}},
		},
	}
	cm := &fakeChatModel{replies: []*schema.Message{reply}}
	d, _ := newTestDispatcher(t, cm, resolver)

	env := d.Dispatch(context.Background(), "s1", "load and record")

	assert.Equal(t, model.EnvelopeToolResponse, env.Type)
	assert.Equal(t, tools.ToolLoadLayer, env.Tool)
	assert.Equal(t, 1, resolver.calls)
}

func TestDispatchSynthesizesMissingToolCallID(t *testing.T) {
	reply := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{Function: schema.FunctionCall{Name: tools.ToolCreateRecord, Arguments: `{"layer_name":"Bozeman"}`}},
		},
	}
	cm := &fakeChatModel{replies: []*schema.Message{reply}}
	d, store := newTestDispatcher(t, cm, nil)

	env := d.Dispatch(context.Background(), "s1", "record it")
	assert.Equal(t, model.EnvelopeToolResponse, env.Type)

	history, err := store.LoadHistory(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 4)
	assert.Equal(t, "call_1", history.Messages[2].ToolCallID)
}

func TestDispatchCarriesHistoryAcrossCycles(t *testing.T) {
	cm := &fakeChatModel{replies: []*schema.Message{
		schema.AssistantMessage("first reply", nil),
		schema.AssistantMessage("second reply", nil),
	}}
	d, store := newTestDispatcher(t, cm, nil)

	d.Dispatch(context.Background(), "s1", "first prompt")
	d.Dispatch(context.Background(), "s1", "second prompt")

	// Second model call sees system prompt + two history turns + new prompt.
	require.Len(t, cm.received, 2)
	second := cm.received[1]
	require.Len(t, second, 4)
	assert.Equal(t, schema.System, second[0].Role)
	assert.Equal(t, "first prompt", second[1].Content)
	assert.Equal(t, "first reply", second[2].Content)
	assert.Equal(t, "second prompt", second[3].Content)

	n, err := store.MessageCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDispatchIsolatesSessions(t *testing.T) {
	cm := &fakeChatModel{replies: []*schema.Message{
		schema.AssistantMessage("for a", nil),
		schema.AssistantMessage("for b", nil),
	}}
	d, store := newTestDispatcher(t, cm, nil)

	d.Dispatch(context.Background(), "session-a", "hello")
	d.Dispatch(context.Background(), "session-b", "hello")

	nA, err := store.MessageCount(context.Background(), "session-a")
	require.NoError(t, err)
	nB, err := store.MessageCount(context.Background(), "session-b")
	require.NoError(t, err)
	assert.Equal(t, 2, nA)
	assert.Equal(t, 2, nB)

	// The second session must not see the first session's turns.
	require.Len(t, cm.received, 2)
	assert.Len(t, cm.received[1], 2)
}

func TestDispatchForwardsEmptyPrompt(t *testing.T) {
	cm := &fakeChatModel{replies: []*schema.Message{schema.AssistantMessage("say something?", nil)}}
	d, _ := newTestDispatcher(t, cm, nil)

	env := d.Dispatch(context.Background(), "s1", "")

	assert.Equal(t, model.EnvelopeText, env.Type)
	require.Len(t, cm.received, 1)
	last := cm.received[0][len(cm.received[0])-1]
	assert.Equal(t, schema.User, last.Role)
	assert.Equal(t, "", last.Content)
}
