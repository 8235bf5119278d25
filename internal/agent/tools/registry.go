package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ErrUnknownTool is returned by Lookup for names outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Entry pairs an invokable tool with its descriptor and declared parameter
// schema. The parameter map drives argument validation before invocation.
type Entry struct {
	Info   *schema.ToolInfo
	Params map[string]*schema.ParameterInfo
	Tool   tool.InvokableTool
}

// Registry is the static mapping from tool name to Entry. It is populated
// once at process start and read-only afterwards; ToolInfos is the exact set
// advertised to the model.
type Registry struct {
	order   []string
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

func (r *Registry) Register(e *Entry) error {
	if e == nil || e.Info == nil || e.Info.Name == "" {
		return fmt.Errorf("tool entry has no name")
	}
	if e.Tool == nil {
		return fmt.Errorf("tool %q has no handler", e.Info.Name)
	}
	if _, exists := r.entries[e.Info.Name]; exists {
		return fmt.Errorf("tool %q already registered", e.Info.Name)
	}
	r.entries[e.Info.Name] = e
	r.order = append(r.order, e.Info.Name)
	return nil
}

func (r *Registry) Lookup(name string) (*Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e, nil
}

// ToolInfos returns the descriptors of all registered tools in registration
// order.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.entries[name].Info)
	}
	return infos
}

// ValidateArguments checks a model-supplied argument mapping against the
// entry's declared parameter schema: the payload must be a JSON object,
// required parameters must be present, and string parameters must carry
// string values.
func (e *Entry) ValidateArguments(argumentsJSON string) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	for name, p := range e.Params {
		v, ok := args[name]
		if !ok {
			if p.Required {
				return fmt.Errorf("missing required argument %q", name)
			}
			continue
		}
		if p.Type == schema.String {
			if _, isString := v.(string); !isString {
				return fmt.Errorf("argument %q must be a string", name)
			}
		}
	}
	return nil
}
