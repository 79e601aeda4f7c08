package gateway_test

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/herald-ai/herald/core/gateway"
	"github.com/herald-ai/herald/pkg/llm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func textResponse(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: text}},
		},
	}
}

func toolResponse(name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role: "assistant",
					ToolCalls: []openai.ToolCall{
						{
							Type: openai.ToolTypeFunction,
							Function: openai.FunctionCall{
								Name:      name,
								Arguments: args,
							},
						},
					},
				},
			},
		},
	}
}

func failing() *llm.MockClient {
	return &llm.MockClient{
		CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("connection refused")
		},
	}
}

func answering(resp openai.ChatCompletionResponse) *llm.MockClient {
	return &llm.MockClient{
		CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return resp, nil
		},
	}
}

var _ = Describe("Gateway", func() {
	var (
		ctx      context.Context
		messages []openai.ChatCompletionMessage
	)

	BeforeEach(func() {
		ctx = context.Background()
		messages = []openai.ChatCompletionMessage{
			{Role: "user", Content: "hello"},
		}
	})

	It("answers from the primary backend when it is healthy", func() {
		primary := answering(textResponse("hi there"))
		fallback := answering(textResponse("should not be asked"))

		gw := gateway.New(
			gateway.Backend{Name: "primary", Model: "gpt-test", Client: primary},
			gateway.Backend{Name: "fallback", Model: "gpt-test", Client: fallback},
		)

		completion, err := gw.Complete(ctx, messages, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(completion.Backend).To(Equal("primary"))
		Expect(completion.Text).To(Equal("hi there"))
		Expect(completion.ToolCall).To(BeNil())
		Expect(primary.ChatCalls).To(Equal(1))
		Expect(fallback.ChatCalls).To(Equal(0))
	})

	It("advances down the list until a backend answers", func() {
		first := failing()
		second := failing()
		third := answering(textResponse("third speaking"))

		gw := gateway.New(
			gateway.Backend{Name: "first", Model: "m", Client: first},
			gateway.Backend{Name: "second", Model: "m", Client: second},
			gateway.Backend{Name: "third", Model: "m", Client: third},
		)

		completion, err := gw.Complete(ctx, messages, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(completion.Backend).To(Equal("third"))
		Expect(first.ChatCalls).To(Equal(1))
		Expect(second.ChatCalls).To(Equal(1))
		Expect(third.ChatCalls).To(Equal(1))
	})

	It("treats a malformed response as a backend failure", func() {
		empty := answering(openai.ChatCompletionResponse{})
		blank := answering(textResponse(""))
		good := answering(textResponse("recovered"))

		gw := gateway.New(
			gateway.Backend{Name: "empty", Model: "m", Client: empty},
			gateway.Backend{Name: "blank", Model: "m", Client: blank},
			gateway.Backend{Name: "good", Model: "m", Client: good},
		)

		completion, err := gw.Complete(ctx, messages, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(completion.Backend).To(Equal("good"))
	})

	It("returns ErrNoProvider after trying every backend exactly once", func() {
		first := failing()
		second := failing()

		gw := gateway.New(
			gateway.Backend{Name: "first", Model: "m", Client: first},
			gateway.Backend{Name: "second", Model: "m", Client: second},
		)

		_, err := gw.Complete(ctx, messages, nil)
		var noProvider *gateway.ErrNoProvider
		Expect(errors.As(err, &noProvider)).To(BeTrue())
		Expect(noProvider.Attempts).To(Equal(2))
		Expect(first.ChatCalls).To(Equal(1))
		Expect(second.ChatCalls).To(Equal(1))
	})

	It("returns a tool call with the arguments untouched", func() {
		args := `{"to":"bob@corp.test","subject":"hi","body":"hello"}`
		backend := answering(toolResponse("send_email", args))

		gw := gateway.New(gateway.Backend{Name: "primary", Model: "m", Client: backend})

		completion, err := gw.Complete(ctx, messages, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(completion.Text).To(BeEmpty())
		Expect(completion.ToolCall).NotTo(BeNil())
		Expect(completion.ToolCall.Name).To(Equal("send_email"))
		Expect(completion.ToolCall.Arguments).To(Equal(args))
	})

	It("treats a tool call without a function name as malformed", func() {
		nameless := answering(toolResponse("", "{}"))
		good := answering(textResponse("fallback answer"))

		gw := gateway.New(
			gateway.Backend{Name: "nameless", Model: "m", Client: nameless},
			gateway.Backend{Name: "good", Model: "m", Client: good},
		)

		completion, err := gw.Complete(ctx, messages, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(completion.Backend).To(Equal("good"))
	})

	It("passes tools through to the request", func() {
		var seen openai.ChatCompletionRequest
		client := &llm.MockClient{
			CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				seen = req
				return textResponse("ok"), nil
			},
		}

		gw := gateway.New(gateway.Backend{Name: "primary", Model: "gpt-test", Client: client})

		tools := []openai.Tool{
			{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "send_email"}},
		}
		_, err := gw.Complete(ctx, messages, tools)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen.Model).To(Equal("gpt-test"))
		Expect(seen.Tools).To(HaveLen(1))
		Expect(seen.Tools[0].Function.Name).To(Equal("send_email"))
	})
})
