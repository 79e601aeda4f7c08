// Package capabilities adapts per-service clients (mailbox, calendar,
// CRM) into the engine's uniform tool schema. The clients themselves
// are narrow external collaborators: they return normalized payloads or
// typed failures, and own their credential refresh endpoints.
package capabilities

import (
	"context"
	"time"

	"github.com/herald-ai/herald/core/types"
)

type EmailSummary struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

type MailboxClient interface {
	SendMessage(ctx context.Context, cred types.Credential, to, subject, body string) (string, error)
	SearchMessages(ctx context.Context, cred types.Credential, query string, limit int) ([]EmailSummary, error)
}

type EventDetails struct {
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Attendees []string  `json:"attendees,omitempty"`
}

type CalendarClient interface {
	CreateEvent(ctx context.Context, cred types.Credential, ev EventDetails) (string, error)
	ListEvents(ctx context.Context, cred types.Credential, from, to time.Time) ([]EventDetails, error)
}

type Contact struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type CRMClient interface {
	// CreateContact is create-if-absent: an existing contact with the
	// same email is returned rather than duplicated.
	CreateContact(ctx context.Context, cred types.Credential, c Contact) (Contact, error)
	SearchContacts(ctx context.Context, cred types.Credential, query string, limit int) ([]Contact, error)
	CreateNote(ctx context.Context, cred types.Credential, contactID, body string) (string, error)
}
