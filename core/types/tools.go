package types

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// ToolParams are the decoded arguments of a tool call.
type ToolParams map[string]interface{}

func (tp ToolParams) Read(s string) error {
	err := json.Unmarshal([]byte(s), &tp)
	return err
}

func (tp ToolParams) String() string {
	b, _ := json.Marshal(tp)
	return string(b)
}

// Unmarshal coerces the params into a typed argument struct.
func (tp ToolParams) Unmarshal(v interface{}) error {
	b, err := json.Marshal(tp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

type ToolName string

func (t ToolName) Is(name string) bool {
	return string(t) == name
}

func (t ToolName) String() string {
	return string(t)
}

// ToolDefinition describes a callable capability: a stable name, a
// natural-language description, and a typed parameter schema.
type ToolDefinition struct {
	Name        ToolName
	Description string
	Properties  map[string]jsonschema.Definition
	Required    []string
}

func (t ToolDefinition) ToFunctionDefinition() *openai.FunctionDefinition {
	return &openai.FunctionDefinition{
		Name:        t.Name.String(),
		Description: t.Description,
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: t.Properties,
			Required:   t.Required,
		},
	}
}

type ToolDefinitions []ToolDefinition

func (t ToolDefinitions) ToTools() []openai.Tool {
	tools := []openai.Tool{}
	for _, def := range t {
		tools = append(tools, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: def.ToFunctionDefinition(),
		})
	}
	return tools
}

func (t ToolDefinitions) Find(name string) *ToolDefinition {
	for _, def := range t {
		if def.Name.Is(name) {
			return &def
		}
	}
	return nil
}

// ToolCall is a (name, arguments) directive emitted by a language-model
// backend. Arguments are kept verbatim as the backend sent them.
type ToolCall struct {
	Name      string
	Arguments string
}

// Params decodes the raw arguments.
func (tc ToolCall) Params() (ToolParams, error) {
	p := ToolParams{}
	if tc.Arguments == "" {
		return p, nil
	}
	if err := p.Read(tc.Arguments); err != nil {
		return nil, err
	}
	return p, nil
}
