package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/arcgis-mcp/server/internal/agent/model"
	"github.com/arcgis-mcp/server/internal/agent/tools"
	logx "github.com/arcgis-mcp/server/pkg/logger"
)

// DefaultSystemPrompt frames the assistant for the map-layer domain when no
// override is configured.
const DefaultSystemPrompt = "You are an assistant for a GIS mapping application. " +
	"You can answer questions directly, or call one of the provided tools when the user " +
	"asks to load a map layer or create a layer record. Call at most one tool per message."

// Dispatcher runs one dispatch cycle per incoming prompt: model invocation,
// at most one tool execution, and envelope construction. Transcript state is
// keyed by session id and mutated append-only, with access serialized per
// session.
type Dispatcher struct {
	model        einomodel.ToolCallingChatModel
	registry     *tools.Registry
	repo         model.ConversationRepository
	sessions     *sessionLocks
	systemPrompt string
	modelName    string
}

// New binds the registry's tool descriptors to the chat model and returns a
// ready Dispatcher. The bound set is exactly what the registry advertises;
// the model can only propose calls from it.
func New(chatModel einomodel.ToolCallingChatModel, registry *tools.Registry, repo model.ConversationRepository, systemPrompt, modelName string) (*Dispatcher, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	bound, err := chatModel.WithTools(registry.ToolInfos())
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to chat model")
		return nil, fmt.Errorf("bind tools to chat model: %w", err)
	}

	return &Dispatcher{
		model:        bound,
		registry:     registry,
		repo:         repo,
		sessions:     newSessionLocks(),
		systemPrompt: systemPrompt,
		modelName:    modelName,
	}, nil
}

// Dispatch processes one prompt for the given session and always returns
// exactly one envelope. The transcript is appended all-or-nothing at the end
// of the cycle; nothing is appended when the model call itself fails.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, prompt string) model.Envelope {
	lock := d.sessions.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history, err := d.repo.LoadHistory(ctx, sessionID)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load conversation history")
		return model.ErrorEnvelope(model.CodeInternal, "failed to load conversation history")
	}

	userMsg := schema.UserMessage(prompt)
	messages := make([]*schema.Message, 0, len(history.Messages)+2)
	messages = append(messages, schema.SystemMessage(d.systemPrompt))
	messages = append(messages, history.Messages...)
	messages = append(messages, userMsg)

	reply, err := d.model.Generate(ctx, messages)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("Model invocation failed")
		return model.ErrorEnvelope(model.CodeInternal, "model invocation failed")
	}
	d.logUsage(sessionID, reply)

	if len(reply.ToolCalls) == 0 {
		d.appendTranscript(ctx, sessionID, userMsg, reply)
		return model.TextEnvelope(reply.Content)
	}

	// Only the first proposed call is inspected; parallel proposals are out
	// of protocol scope.
	call := reply.ToolCalls[0]
	if strings.TrimSpace(call.ID) == "" {
		// Gemini may omit tool call ids; synthesize one so the transcript
		// keeps the call/result pairing.
		call.ID = "call_1"
		reply.ToolCalls[0].ID = call.ID
	}
	toolName := call.Function.Name

	entry, err := d.registry.Lookup(toolName)
	if err != nil {
		logx.Warn().Str("session_id", sessionID).Str("tool", toolName).Msg("Model proposed unknown tool")
		d.appendTranscript(ctx, sessionID, userMsg, reply)
		return model.ErrorEnvelope(model.CodeUnknownTool, fmt.Sprintf("Unknown tool requested: %s", toolName))
	}

	if err := entry.ValidateArguments(call.Function.Arguments); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Str("tool", toolName).Msg("Tool arguments failed validation")
		d.appendTranscript(ctx, sessionID, userMsg, reply)
		return model.ErrorEnvelope(model.CodeInvalidArguments, fmt.Sprintf("Invalid arguments for tool %s: %v", toolName, err))
	}

	payload, err := d.invokeTool(ctx, entry, call.Function.Arguments)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Str("tool", toolName).Msg("Tool execution failed")
		d.appendTranscript(ctx, sessionID, userMsg, reply)
		return model.ErrorEnvelope(model.CodeInternal, fmt.Sprintf("Tool %s failed", toolName))
	}

	logx.Debug().Str("session_id", sessionID).Str("tool", toolName).Msg("Tool executed")

	toolMsg := schema.ToolMessage(payload, call.ID)
	// A closing assistant message keeps the tool outcome in model-visible
	// history; there is no second model pass within a cycle.
	confirmation := schema.AssistantMessage(payload, nil)
	d.appendTranscript(ctx, sessionID, userMsg, reply, toolMsg, confirmation)

	return model.ToolEnvelope(toolName, json.RawMessage(payload))
}

// invokeTool runs the registered handler, converting any returned error or
// panic into an error at this single boundary.
func (d *Dispatcher) invokeTool(ctx context.Context, entry *tools.Entry, arguments string) (payload string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panic: %v", r)
		}
	}()
	return entry.Tool.InvokableRun(ctx, arguments)
}

func (d *Dispatcher) appendTranscript(ctx context.Context, sessionID string, messages ...*schema.Message) {
	if err := d.repo.AppendMessages(ctx, sessionID, messages); err != nil {
		// The envelope is already decided; a transcript write failure only
		// costs memory of this cycle.
		logx.Error().Err(err).Str("session_id", sessionID).Msg("Failed to append transcript")
	}
}

func (d *Dispatcher) logUsage(sessionID string, reply *schema.Message) {
	if reply == nil || reply.ResponseMeta == nil || reply.ResponseMeta.Usage == nil {
		return
	}
	usage := reply.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(d.modelName))
	logx.Debug().
		Str("session_id", sessionID).
		Str("model", d.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
