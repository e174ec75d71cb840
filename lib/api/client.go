// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/corkboard-foundation/corkboard/lib/netutil"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/version"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 from the API, such as a
// release of a document that is not held.
func IsConflict(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode == http.StatusConflict
}

// Client is a typed client for a peer's API.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient returns a client for the API at baseURL, for example
// "http://127.0.0.1:7420". A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parsing base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api: base URL %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: base, httpClient: httpClient, dialer: websocket.DefaultDialer}, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends a request and decodes a successful JSON response into
// result, which may be nil.
func (c *Client) do(ctx context.Context, op, method, path string, body any, result any) error {
	return c.doURL(ctx, op, method, c.url(path, nil), body, result)
}

// doURL is do for a target that already carries its query.
func (c *Client) doURL(ctx context.Context, op, method, target string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	return c.send(ctx, op, method, target, reader, result)
}

func (c *Client) send(ctx context.Context, op, method, target string, body io.Reader, result any) error {
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: response.StatusCode, Message: netutil.ErrorMessage(response.Body)}
	}
	if result == nil {
		return nil
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func documentPath(doc ref.DocumentID, suffix string) string {
	return "/v1/documents/" + doc.String() + suffix
}

// Identity returns the peer's identity.
func (c *Client) Identity(ctx context.Context) (IdentityResponse, error) {
	var result IdentityResponse
	err := c.do(ctx, "identity", http.MethodGet, "/v1/identity", nil, &result)
	return result, err
}

// CreateDocument creates a document from raw JSON or JSONC content.
func (c *Client) CreateDocument(ctx context.Context, content []byte) (ref.DocumentID, error) {
	var result CreateResponse
	err := c.send(ctx, "create document", http.MethodPost, c.url("/v1/documents", nil), bytes.NewReader(content), &result)
	return result.Document, err
}

// Document returns a document's content.
func (c *Client) Document(ctx context.Context, doc ref.DocumentID) (map[string]any, error) {
	var result DocumentResponse
	if err := c.do(ctx, "get document", http.MethodGet, documentPath(doc, ""), nil, &result); err != nil {
		return nil, err
	}
	return result.Content, nil
}

// Acquire opens doc for presence and returns the new count.
func (c *Client) Acquire(ctx context.Context, doc ref.DocumentID) (int, error) {
	var result CountResponse
	err := c.do(ctx, "acquire", http.MethodPost, documentPath(doc, "/presence/acquire"), nil, &result)
	return result.Count, err
}

// Release closes one reference to doc and returns the new count.
func (c *Client) Release(ctx context.Context, doc ref.DocumentID) (int, error) {
	var result CountResponse
	err := c.do(ctx, "release", http.MethodPost, documentPath(doc, "/presence/release"), nil, &result)
	return result.Count, err
}

// facetURL carries the facet in the query: the root facet "/" cannot
// be a path segment.
func (c *Client) facetURL(doc ref.DocumentID, facet ref.FacetKey) string {
	return c.url(documentPath(doc, "/presence/facet"), url.Values{"facet": {string(facet)}})
}

// SetFacet publishes payload under facet of doc.
func (c *Client) SetFacet(ctx context.Context, doc ref.DocumentID, facet ref.FacetKey, payload any) error {
	if payload == nil {
		return c.ClearFacet(ctx, doc, facet)
	}
	return c.doURL(ctx, "set facet", http.MethodPut, c.facetURL(doc, facet), payload, nil)
}

// ClearFacet withdraws the local payload for facet of doc.
func (c *Client) ClearFacet(ctx context.Context, doc ref.DocumentID, facet ref.FacetKey) error {
	return c.doURL(ctx, "clear facet", http.MethodDelete, c.facetURL(doc, facet), nil, nil)
}

// Presence returns the live peers of doc for facet.
func (c *Client) Presence(ctx context.Context, doc ref.DocumentID, facet ref.FacetKey) (PresenceResponse, error) {
	var result PresenceResponse
	query := url.Values{"facet": {string(facet)}}
	err := c.send(ctx, "presence", http.MethodGet, c.url(documentPath(doc, "/presence"), query), nil, &result)
	return result, err
}

// ContactOnline reports whether contact is online.
func (c *Client) ContactOnline(ctx context.Context, contact ref.ContactID) (bool, error) {
	var result OnlineResponse
	err := c.do(ctx, "contact online", http.MethodGet, "/v1/contacts/"+contact.String()+"/online", nil, &result)
	return result.Online, err
}

// ContactDevices returns contact's online devices.
func (c *Client) ContactDevices(ctx context.Context, contact ref.ContactID) ([]ref.DeviceID, error) {
	var result DevicesResponse
	err := c.do(ctx, "contact devices", http.MethodGet, "/v1/contacts/"+contact.String()+"/devices", nil, &result)
	return result.Devices, err
}

// DeviceOnline reports whether device is online.
func (c *Client) DeviceOnline(ctx context.Context, device ref.DeviceID) (bool, error) {
	var result OnlineResponse
	err := c.do(ctx, "device online", http.MethodGet, "/v1/devices/"+device.String()+"/online", nil, &result)
	return result.Online, err
}

// Watch streams doc's presence for facet, calling fn for every update
// until ctx is cancelled, fn returns an error, or the server ends the
// stream. Cancellation returns ctx.Err().
func (c *Client) Watch(ctx context.Context, doc ref.DocumentID, facet ref.FacetKey, fn func(PresenceResponse) error) error {
	target, err := url.Parse(c.url(documentPath(doc, "/presence/watch"), url.Values{"facet": {string(facet)}}))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if target.Scheme == "https" {
		target.Scheme = "wss"
	} else {
		target.Scheme = "ws"
	}

	header := http.Header{"User-Agent": {version.UserAgent()}}
	conn, response, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if response != nil {
			defer response.Body.Close()
			return &StatusError{Op: "watch", StatusCode: response.StatusCode, Message: netutil.ErrorMessage(response.Body)}
		}
		return fmt.Errorf("watch: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var update PresenceResponse
		if err := conn.ReadJSON(&update); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if err := fn(update); err != nil {
			return err
		}
	}
}
