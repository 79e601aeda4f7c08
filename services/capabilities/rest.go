package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/herald-ai/herald/core/types"
)

// RESTBridge is a thin JSON client for companion executor services
// (the mailbox and calendar bridges). Each bridge owns the raw
// provider API and OAuth handling; this side only speaks the
// normalized payloads and typed failures of the executor contract.
type RESTBridge struct {
	baseURL string
	http    *http.Client
}

func NewRESTBridge(baseURL string) *RESTBridge {
	return &RESTBridge{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *RESTBridge) post(ctx context.Context, cred types.Credential, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return &types.CapabilityError{Kind: types.FailureTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &types.CapabilityError{Kind: types.FailureCredentialExpired, Message: "bridge rejected credential"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &types.CapabilityError{Kind: types.FailureRateLimited, Message: path}
	case resp.StatusCode == http.StatusNotFound:
		return &types.CapabilityError{Kind: types.FailureNotFound, Message: path}
	case resp.StatusCode >= 400:
		return &types.CapabilityError{
			Kind:    types.FailureTransport,
			Message: fmt.Sprintf("POST %s: status %d", path, resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &types.CapabilityError{Kind: types.FailureTransport, Message: "malformed response body"}
		}
	}
	return nil
}

// RESTMailboxClient implements MailboxClient against a mailbox bridge.
type RESTMailboxClient struct {
	bridge *RESTBridge
}

var _ MailboxClient = &RESTMailboxClient{}

func NewRESTMailboxClient(baseURL string) *RESTMailboxClient {
	return &RESTMailboxClient{bridge: NewRESTBridge(baseURL)}
}

func (c *RESTMailboxClient) SendMessage(ctx context.Context, cred types.Credential, to, subject, body string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.bridge.post(ctx, cred, "/messages/send", map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	}, &resp)
	return resp.ID, err
}

func (c *RESTMailboxClient) SearchMessages(ctx context.Context, cred types.Credential, query string, limit int) ([]EmailSummary, error) {
	var resp struct {
		Results []EmailSummary `json:"results"`
	}
	err := c.bridge.post(ctx, cred, "/messages/search", map[string]interface{}{
		"query": query,
		"limit": limit,
	}, &resp)
	return resp.Results, err
}

// RESTCalendarClient implements CalendarClient against a calendar
// bridge.
type RESTCalendarClient struct {
	bridge *RESTBridge
}

var _ CalendarClient = &RESTCalendarClient{}

func NewRESTCalendarClient(baseURL string) *RESTCalendarClient {
	return &RESTCalendarClient{bridge: NewRESTBridge(baseURL)}
}

func (c *RESTCalendarClient) CreateEvent(ctx context.Context, cred types.Credential, ev EventDetails) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.bridge.post(ctx, cred, "/events/create", ev, &resp)
	return resp.ID, err
}

func (c *RESTCalendarClient) ListEvents(ctx context.Context, cred types.Credential, from, to time.Time) ([]EventDetails, error) {
	var resp struct {
		Results []EventDetails `json:"results"`
	}
	err := c.bridge.post(ctx, cred, "/events/list", map[string]string{
		"from": from.Format(time.RFC3339),
		"to":   to.Format(time.RFC3339),
	}, &resp)
	return resp.Results, err
}
