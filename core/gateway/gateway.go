// Package gateway sends chat-completion requests to an ordered list of
// language-model backends, normalizing every backend's answer into a
// common completion shape and advancing down the list on failure.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/mudler/xlog"

	"github.com/herald-ai/herald/core/types"
	"github.com/herald-ai/herald/pkg/llm"
)

// Backend is one language-model endpoint in the fallback order. The
// list and its credentials are injected at construction; nothing is
// read ambiently at call time.
type Backend struct {
	Name    string
	Model   string
	Client  llm.ChatClient
	Timeout time.Duration
}

// ErrNoProvider is returned when every configured backend failed.
// Callers must have a safe default response for it.
type ErrNoProvider struct {
	Attempts int
}

func (e *ErrNoProvider) Error() string {
	return fmt.Sprintf("no language-model backend available after %d attempts", e.Attempts)
}

// Completion is a normalized backend answer: either plain text (the
// terminal response) or a tool call to dispatch, never both.
type Completion struct {
	// Backend records which backend answered, for observability.
	Backend  string
	Text     string
	ToolCall *types.ToolCall
}

type Gateway struct {
	backends []Backend
}

// New builds a gateway over an ordered backend list, primary first.
func New(backends ...Backend) *Gateway {
	return &Gateway{backends: backends}
}

const defaultBackendTimeout = 90 * time.Second

// Complete tries each backend in order, at most once per call. Any
// transport error, empty choice list, or unparsable body advances to
// the next backend. Tool calls are returned verbatim.
func (g *Gateway) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (*Completion, error) {
	attempts := 0

	for _, backend := range g.backends {
		attempts++

		req := openai.ChatCompletionRequest{
			Model:    backend.Model,
			Messages: messages,
		}
		if len(tools) > 0 {
			req.Tools = tools
		}

		timeout := backend.Timeout
		if timeout <= 0 {
			timeout = defaultBackendTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := backend.Client.CreateChatCompletion(callCtx, req)
		cancel()

		if err != nil {
			xlog.Warn("Backend failed, advancing", "backend", backend.Name, "error", err)
			continue
		}

		completion, err := normalize(backend.Name, resp)
		if err != nil {
			xlog.Warn("Backend returned malformed response, advancing", "backend", backend.Name, "error", err)
			continue
		}

		xlog.Debug("Backend answered", "backend", backend.Name, "toolCall", completion.ToolCall != nil)
		return completion, nil
	}

	return nil, &ErrNoProvider{Attempts: attempts}
}

func normalize(backend string, resp openai.ChatCompletionResponse) (*Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices")
	}

	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		if call.Function.Name == "" {
			return nil, fmt.Errorf("tool call without a function name")
		}
		return &Completion{
			Backend: backend,
			ToolCall: &types.ToolCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}, nil
	}

	if msg.Content == "" {
		return nil, fmt.Errorf("empty completion")
	}

	return &Completion{
		Backend: backend,
		Text:    msg.Content,
	}, nil
}
