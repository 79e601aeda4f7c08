package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

const hubspotBaseURL = "https://api.hubapi.com"

// HubSpotClient implements CRMClient against the HubSpot v3 objects API.
type HubSpotClient struct {
	baseURL string
	http    *http.Client
}

var _ CRMClient = &HubSpotClient{}

func NewHubSpotClient() *HubSpotClient {
	return &HubSpotClient{
		baseURL: hubspotBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewHubSpotClientWithBaseURL is used to point the client at a test
// server.
func NewHubSpotClientWithBaseURL(base string) *HubSpotClient {
	c := NewHubSpotClient()
	c.baseURL = base
	return c
}

type hubspotContact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type hubspotSearchResponse struct {
	Results []hubspotContact `json:"results"`
}

func (c *HubSpotClient) request(ctx context.Context, cred types.Credential, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &types.CapabilityError{Kind: types.FailureTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &types.CapabilityError{Kind: types.FailureCredentialExpired, Message: "access token expired or invalid"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &types.CapabilityError{Kind: types.FailureRateLimited, Message: "hubspot rate limit"}
	case resp.StatusCode == http.StatusNotFound:
		return &types.CapabilityError{Kind: types.FailureNotFound, Message: path}
	case resp.StatusCode >= 400:
		return &types.CapabilityError{
			Kind:    types.FailureTransport,
			Message: fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &types.CapabilityError{Kind: types.FailureTransport, Message: "malformed response body"}
		}
	}
	return nil
}

func (c *HubSpotClient) SearchContacts(ctx context.Context, cred types.Credential, query string, limit int) ([]Contact, error) {
	searchBody := map[string]interface{}{
		"filterGroups": []map[string]interface{}{
			{
				"filters": []map[string]interface{}{
					{
						"propertyName": "email",
						"operator":     "CONTAINS_TOKEN",
						"value":        query,
					},
				},
			},
		},
		"properties": []string{"email", "firstname", "lastname", "company"},
		"limit":      limit,
	}

	var resp hubspotSearchResponse
	if err := c.request(ctx, cred, http.MethodPost, "/crm/v3/objects/contacts/search", searchBody, &resp); err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(resp.Results))
	for _, r := range resp.Results {
		contacts = append(contacts, Contact{
			ID:        r.ID,
			Email:     r.Properties["email"],
			FirstName: r.Properties["firstname"],
			LastName:  r.Properties["lastname"],
		})
	}
	return contacts, nil
}

func (c *HubSpotClient) CreateContact(ctx context.Context, cred types.Credential, contact Contact) (Contact, error) {
	// create-if-absent: an existing contact with the same email wins
	existing, err := c.SearchContacts(ctx, cred, contact.Email, 1)
	if err != nil {
		return Contact{}, err
	}
	for _, e := range existing {
		if strings.EqualFold(e.Email, contact.Email) {
			return e, nil
		}
	}

	body := map[string]interface{}{
		"properties": map[string]string{
			"email":     contact.Email,
			"firstname": contact.FirstName,
			"lastname":  contact.LastName,
		},
	}
	var created hubspotContact
	if err := c.request(ctx, cred, http.MethodPost, "/crm/v3/objects/contacts", body, &created); err != nil {
		return Contact{}, err
	}

	contact.ID = created.ID
	return contact, nil
}

func (c *HubSpotClient) CreateNote(ctx context.Context, cred types.Credential, contactID, noteBody string) (string, error) {
	body := map[string]interface{}{
		"properties": map[string]string{
			"hs_note_body": noteBody,
			"hs_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"associations": []map[string]interface{}{
			{
				"to": map[string]string{"id": contactID},
				"types": []map[string]interface{}{
					{
						"associationCategory": "HUBSPOT_DEFINED",
						"associationTypeId":   202,
					},
				},
			},
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, cred, http.MethodPost, "/crm/v3/objects/notes", body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// HubSpotRefresher renews access tokens through the HubSpot OAuth token
// endpoint.
type HubSpotRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client
}

var _ types.TokenRefresher = &HubSpotRefresher{}

func NewHubSpotRefresher(clientID, clientSecret string) *HubSpotRefresher {
	return &HubSpotRefresher{
		tokenURL:     hubspotBaseURL + "/oauth/v1/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *HubSpotRefresher) Refresh(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", r.clientID)
	form.Set("client_secret", r.clientSecret)
	form.Set("refresh_token", conn.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("token refresh: malformed response: %w", err)
	}

	refreshed := *conn
	refreshed.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		refreshed.RefreshToken = payload.RefreshToken
	}
	expires := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	refreshed.ExpiresAt = &expires
	return &refreshed, nil
}
