package capabilities

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

type SendEmailParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendEmail sends a message through the user's connected mailbox.
type SendEmail struct {
	client MailboxClient
}

func NewSendEmail(client MailboxClient) *SendEmail {
	return &SendEmail{client: client}
}

func (a *SendEmail) Provider() models.Provider {
	return models.ProviderMailbox
}

func (a *SendEmail) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "send_email",
		Description: "Send an email from the user's mailbox.",
		Properties: map[string]jsonschema.Definition{
			"to": {
				Type:        jsonschema.String,
				Description: "Recipient email address",
			},
			"subject": {
				Type:        jsonschema.String,
				Description: "Email subject line",
			},
			"body": {
				Type:        jsonschema.String,
				Description: "Plain-text email body",
			},
		},
		Required: []string{"to", "subject", "body"},
	}
}

func (a *SendEmail) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p SendEmailParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}

	id, err := a.client.SendMessage(ctx, cred, p.To, p.Subject, p.Body)
	if err != nil {
		return types.CapabilityResult{}, err
	}

	return types.CapabilityResult{
		Result: fmt.Sprintf("Sent email %q to %s.", p.Subject, p.To),
		Metadata: map[string]interface{}{
			"messageId": id,
			"to":        p.To,
		},
	}, nil
}

type SearchEmailParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchEmail searches the user's mailbox.
type SearchEmail struct {
	client MailboxClient
}

func NewSearchEmail(client MailboxClient) *SearchEmail {
	return &SearchEmail{client: client}
}

func (a *SearchEmail) Provider() models.Provider {
	return models.ProviderMailbox
}

func (a *SearchEmail) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "search_email",
		Description: "Search the user's mailbox for messages matching a query.",
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "Search query (sender, subject, or free text)",
			},
			"limit": {
				Type:        jsonschema.Number,
				Description: "Maximum number of results, defaults to 10",
			},
		},
		Required: []string{"query"},
	}
}

func (a *SearchEmail) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p SearchEmailParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	messages, err := a.client.SearchMessages(ctx, cred, p.Query, p.Limit)
	if err != nil {
		return types.CapabilityResult{}, err
	}

	if len(messages) == 0 {
		return types.CapabilityResult{
			Result: fmt.Sprintf("No messages found for %q.", p.Query),
		}, nil
	}

	var lines []string
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", m.From, m.Subject, m.Snippet))
	}
	return types.CapabilityResult{
		Result: fmt.Sprintf("Found %d messages for %q:\n%s", len(messages), p.Query, strings.Join(lines, "\n")),
		Metadata: map[string]interface{}{
			"count": len(messages),
		},
	}, nil
}
