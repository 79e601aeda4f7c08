package capabilities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

type CreateEventParams struct {
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Attendees []string `json:"attendees,omitempty"`
}

// CreateCalendarEvent creates an entry in the user's calendar.
type CreateCalendarEvent struct {
	client CalendarClient
}

func NewCreateCalendarEvent(client CalendarClient) *CreateCalendarEvent {
	return &CreateCalendarEvent{client: client}
}

func (a *CreateCalendarEvent) Provider() models.Provider {
	return models.ProviderCalendar
}

func (a *CreateCalendarEvent) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "create_calendar_event",
		Description: "Create a calendar event with a title, start and end time, and optional attendee email addresses.",
		Properties: map[string]jsonschema.Definition{
			"title": {
				Type:        jsonschema.String,
				Description: "Event title",
			},
			"start": {
				Type:        jsonschema.String,
				Description: "Start time, RFC3339 (e.g. 2026-09-01T14:00:00Z)",
			},
			"end": {
				Type:        jsonschema.String,
				Description: "End time, RFC3339",
			},
			"attendees": {
				Type:        jsonschema.Array,
				Description: "Attendee email addresses",
				Items: &jsonschema.Definition{
					Type: jsonschema.String,
				},
			},
		},
		Required: []string{"title", "start", "end"},
	}
}

func (a *CreateCalendarEvent) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p CreateEventParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}

	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return types.CapabilityResult{}, fmt.Errorf("invalid start time %q: %w", p.Start, err)
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return types.CapabilityResult{}, fmt.Errorf("invalid end time %q: %w", p.End, err)
	}
	if !end.After(start) {
		return types.CapabilityResult{}, fmt.Errorf("event end %s is not after start %s", p.End, p.Start)
	}

	id, err := a.client.CreateEvent(ctx, cred, EventDetails{
		Title:     p.Title,
		Start:     start,
		End:       end,
		Attendees: p.Attendees,
	})
	if err != nil {
		return types.CapabilityResult{}, err
	}

	summary := fmt.Sprintf("Created calendar event %q on %s (%s).",
		p.Title, start.Format("Mon Jan 2 15:04"), end.Sub(start))
	if len(p.Attendees) > 0 {
		summary = fmt.Sprintf("Created calendar event %q on %s (%s) with %s.",
			p.Title, start.Format("Mon Jan 2 15:04"), end.Sub(start), strings.Join(p.Attendees, ", "))
	}

	return types.CapabilityResult{
		Result: summary,
		Metadata: map[string]interface{}{
			"eventId": id,
			"start":   start.Format(time.RFC3339),
			"end":     end.Format(time.RFC3339),
		},
	}, nil
}

type ListEventsParams struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ListCalendarEvents lists entries in a time window.
type ListCalendarEvents struct {
	client CalendarClient
}

func NewListCalendarEvents(client CalendarClient) *ListCalendarEvents {
	return &ListCalendarEvents{client: client}
}

func (a *ListCalendarEvents) Provider() models.Provider {
	return models.ProviderCalendar
}

func (a *ListCalendarEvents) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        "list_calendar_events",
		Description: "List the user's calendar events between two times.",
		Properties: map[string]jsonschema.Definition{
			"from": {
				Type:        jsonschema.String,
				Description: "Window start, RFC3339",
			},
			"to": {
				Type:        jsonschema.String,
				Description: "Window end, RFC3339",
			},
		},
		Required: []string{"from", "to"},
	}
}

func (a *ListCalendarEvents) Execute(ctx context.Context, cred types.Credential, params types.ToolParams) (types.CapabilityResult, error) {
	var p ListEventsParams
	if err := params.Unmarshal(&p); err != nil {
		return types.CapabilityResult{}, err
	}

	from, err := time.Parse(time.RFC3339, p.From)
	if err != nil {
		return types.CapabilityResult{}, fmt.Errorf("invalid from time %q: %w", p.From, err)
	}
	to, err := time.Parse(time.RFC3339, p.To)
	if err != nil {
		return types.CapabilityResult{}, fmt.Errorf("invalid to time %q: %w", p.To, err)
	}

	events, err := a.client.ListEvents(ctx, cred, from, to)
	if err != nil {
		return types.CapabilityResult{}, err
	}

	if len(events) == 0 {
		return types.CapabilityResult{Result: "No events in that window."}, nil
	}

	var lines []string
	for _, ev := range events {
		lines = append(lines, fmt.Sprintf("- %s: %s to %s",
			ev.Title, ev.Start.Format("Mon Jan 2 15:04"), ev.End.Format("15:04")))
	}
	return types.CapabilityResult{
		Result: fmt.Sprintf("Found %d events:\n%s", len(events), strings.Join(lines, "\n")),
		Metadata: map[string]interface{}{
			"count": len(events),
		},
	}, nil
}
