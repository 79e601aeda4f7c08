package capabilities

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

type CreateContactParams struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// CreateCRMContact creates a contact in the user's CRM if one with the
// same email does not already exist.
type CreateCRMContact struct {
	client CRMClient
}

func NewCreateCRMContact(client CRMClient) *CreateCRMContact {
	return &CreateCRMContact{client: client}
}

func (a *CreateCRMContact) Provider() models.Provider {
	return models.ProviderCRM
}

func (a *CreateCRMContact) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "create_crm_contact",
		Description: "Create a CRM contact for an email address if it does not already exist.",
		Properties: map[string]jsonschema.Definition{
			"email": {
				Type:        jsonschema.String,
				Description: "Contact email address",
			},
			"firstName": {
				Type:        jsonschema.String,
				Description: "First name, if known",
			},
			"lastName": {
				Type:        jsonschema.String,
				Description: "Last name, if known",
			},
		},
		Required: []string{"email"},
	}
}

func (a *CreateCRMContact) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p CreateContactParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}

	contact, err := a.client.CreateContact(ctx, cred, Contact{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	})
	if err != nil {
		return types.CapabilityResult{}, err
	}

	return types.CapabilityResult{
		Result: fmt.Sprintf("Created CRM contact %s.", contact.Email),
		Metadata: map[string]interface{}{
			"contactId": contact.ID,
			"email":     contact.Email,
		},
	}, nil
}

type SearchContactsParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchCRMContacts searches CRM contacts by email or name.
type SearchCRMContacts struct {
	client CRMClient
}

func NewSearchCRMContacts(client CRMClient) *SearchCRMContacts {
	return &SearchCRMContacts{client: client}
}

func (a *SearchCRMContacts) Provider() models.Provider {
	return models.ProviderCRM
}

func (a *SearchCRMContacts) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "search_crm_contacts",
		Description: "Search CRM contacts by email address or name.",
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "Email address or name to search for",
			},
			"limit": {
				Type:        jsonschema.Number,
				Description: "Maximum number of results, defaults to 10",
			},
		},
		Required: []string{"query"},
	}
}

func (a *SearchCRMContacts) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p SearchContactsParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}

	contacts, err := a.client.SearchContacts(ctx, cred, p.Query, p.Limit)
	if err != nil {
		return types.CapabilityResult{}, err
	}

	if len(contacts) == 0 {
		return types.CapabilityResult{
			Result: fmt.Sprintf("No CRM contacts found for %q.", p.Query),
			Metadata: map[string]interface{}{
				"count": 0,
			},
		}, nil
	}

	var lines []string
	for _, c := range contacts {
		lines = append(lines, fmt.Sprintf("- %s %s <%s>", c.FirstName, c.LastName, c.Email))
	}
	return types.CapabilityResult{
		Result: fmt.Sprintf("Found %d CRM contacts for %q:\n%s", len(contacts), p.Query, strings.Join(lines, "\n")),
		Metadata: map[string]interface{}{
			"count": len(contacts),
		},
	}, nil
}

type CreateNoteParams struct {
	ContactEmail string `json:"contactEmail"`
	Body         string `json:"body"`
}

// CreateCRMNote attaches a note to a CRM contact, found by email.
type CreateCRMNote struct {
	client CRMClient
}

func NewCreateCRMNote(client CRMClient) *CreateCRMNote {
	return &CreateCRMNote{client: client}
}

func (a *CreateCRMNote) Provider() models.Provider {
	return models.ProviderCRM
}

func (a *CreateCRMNote) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "create_crm_note",
		Description: "Attach a note to the CRM contact with the given email address.",
		Properties: map[string]jsonschema.Definition{
			"contactEmail": {
				Type:        jsonschema.String,
				Description: "Email address of the contact the note belongs to",
			},
			"body": {
				Type:        jsonschema.String,
				Description: "Note text",
			},
		},
		Required: []string{"contactEmail", "body"},
	}
}

func (a *CreateCRMNote) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p CreateNoteParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}

	contacts, err := a.client.SearchContacts(ctx, cred, p.ContactEmail, 1)
	if err != nil {
		return types.CapabilityResult{}, err
	}
	if len(contacts) == 0 {
		return types.CapabilityResult{}, &types.CapabilityError{
			Kind:    types.FailureNotFound,
			Message: fmt.Sprintf("no CRM contact for %s", p.ContactEmail),
		}
	}

	noteID, err := a.client.CreateNote(ctx, cred, contacts[0].ID, p.Body)
	if err != nil {
		return types.CapabilityResult{}, err
	}

	return types.CapabilityResult{
		Result: fmt.Sprintf("Added a note to CRM contact %s.", p.ContactEmail),
		Metadata: map[string]interface{}{
			"noteId":    noteID,
			"contactId": contacts[0].ID,
		},
	}, nil
}
