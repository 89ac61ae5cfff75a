// Package hubspot calls the HubSpot CRM API to find contacts and log notes against them.
package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/UKHomeOffice/notesync/internal/client"
)

// DefaultURL is the HubSpot API base URL
const DefaultURL = "https://api.hubapi.com"

// APIError is a non 2xx reply from HubSpot
type APIError struct {
	StatusCode int
	Category   string
	Message    string
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("HubSpot replied %v %v: %v", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("HubSpot replied %v: %v", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a HubSpot 404
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// Client is a HubSpot CRM client
type Client struct {
	c *client.Client
}

// NewClient returns a client for the API at base authenticated with token
func NewClient(base, token string, hc *http.Client) (*Client, error) {

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("could not parse HubSpot URL: %w", err)
	}
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{c: &client.Client{
		BaseURL:    u,
		HTTPClient: hc,
		Token:      token,
	}}, nil
}

type properties map[string]string

type objectInput struct {
	Properties properties `json:"properties"`
}

// call makes a request and returns the reply body of a 2xx response
func (h *Client) call(ctx context.Context, method, path string, in interface{}) ([]byte, error) {

	var out []byte
	if in != nil {
		var err error
		out, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("could not marshal HubSpot payload: %w", err)
		}
	}

	req, err := h.c.NewRequest(ctx, method, path, out)
	if err != nil {
		return nil, fmt.Errorf("could not make request: %w", err)
	}

	res, err := h.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not call HubSpot: %w", err)
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read HubSpot response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		ae := &APIError{
			StatusCode: res.StatusCode,
			Category:   gjson.GetBytes(body, "category").Str,
			Message:    gjson.GetBytes(body, "message").Str,
		}
		if ae.Message == "" {
			ae.Message = http.StatusText(res.StatusCode)
		}
		return nil, ae
	}

	return body, nil
}

// create posts a new object and returns its id
func (h *Client) create(ctx context.Context, object string, props properties) (string, error) {

	body, err := h.call(ctx, http.MethodPost, "/crm/v3/objects/"+object, &objectInput{Properties: props})
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("could not find an id in HubSpot response")
	}
	return id, nil
}

// ContactByEmail looks up a contact by its email address and returns its id
func (h *Client) ContactByEmail(ctx context.Context, email string) (string, error) {

	path := "/crm/v3/objects/contacts/" + url.PathEscape(email) + "?idProperty=email"

	body, err := h.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("could not get contact: %w", err)
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("could not find an id in HubSpot response")
	}
	return id, nil
}

// CreateContact creates a contact and returns its id
func (h *Client) CreateContact(ctx context.Context, email, name string) (string, error) {

	id, err := h.create(ctx, "contacts", properties{
		"email":     email,
		"firstname": name,
	})
	if err != nil {
		return "", fmt.Errorf("could not create contact: %w", err)
	}
	return id, nil
}

// CreateNote creates a note stamped with ts and returns its id
func (h *Client) CreateNote(ctx context.Context, body string, ts time.Time) (string, error) {

	id, err := h.create(ctx, "notes", properties{
		"hs_note_body": body,
		"hs_timestamp": strconv.FormatInt(ts.UnixMilli(), 10),
	})
	if err != nil {
		return "", fmt.Errorf("could not create note: %w", err)
	}
	return id, nil
}

// AssociateNote links a note to a contact with the default association type
func (h *Client) AssociateNote(ctx context.Context, noteID, contactID string) error {

	path := fmt.Sprintf("/crm/v4/objects/notes/%v/associations/default/contacts/%v",
		url.PathEscape(noteID), url.PathEscape(contactID))

	_, err := h.call(ctx, http.MethodPut, path, nil)
	if err != nil {
		return fmt.Errorf("could not associate note %v with contact %v: %w", noteID, contactID, err)
	}
	return nil
}
