package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client is a HTTP client
type Client struct {
	BaseURL    *url.URL
	HTTPClient *http.Client
	Token      string
}

// NewRequest creates a HTTP request
func (c *Client) NewRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {

	if c.Token == "" {
		return nil, fmt.Errorf("missing credentials")
	}

	p, err := url.Parse(path)
	if err != nil {
		return nil, err
	}

	// path is relative to any prefix in BaseURL
	u := *c.BaseURL
	joined := strings.TrimRight(c.BaseURL.EscapedPath(), "/") + "/" + strings.TrimLeft(p.EscapedPath(), "/")
	u.Path, err = url.PathUnescape(joined)
	if err != nil {
		return nil, err
	}
	u.RawPath = joined
	u.RawQuery = p.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	return req, nil
}

// Do makes a HTTP request
func (c *Client) Do(req *http.Request) (*http.Response, error) {

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, err
}
