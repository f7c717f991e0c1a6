package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const restPrefix = "/rest/v1"

// Client talks to the hosted store over its REST surface and opens push
// channels over its websocket surface. One Client is shared process-wide.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	debug      bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDebug enables request logging.
func WithDebug() Option {
	return func(c *Client) { c.debug = true }
}

// NewClient creates a gateway client for the given endpoint and access
// credential. The credential is expected to be a JWT issued by the store;
// it is parsed (not verified — the store verifies it) so an already-expired
// or malformed key is caught at startup instead of as a wall of 401s later.
func NewClient(baseURL, key string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if key == "" {
		return nil, fmt.Errorf("gateway key is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := inspectCredential(key); err != nil {
		return nil, err
	}

	return c, nil
}

// inspectCredential decodes the access key without signature verification
// and rejects keys that have already expired. Keys that are not JWTs at
// all (the dev gateway accepts anything) only produce a warning.
func inspectCredential(key string) error {
	token, _, err := jwt.NewParser().ParseUnverified(key, jwt.MapClaims{})
	if err != nil {
		log.Printf("Warning: gateway key is not a JWT; the hosted store will reject it")
		return nil
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if time.Until(exp.Time) <= 0 {
			return fmt.Errorf("gateway key expired at %s", exp.Time.Format(time.RFC3339))
		}
		if time.Until(exp.Time) < 7*24*time.Hour {
			log.Printf("Warning: gateway key expires soon (%s)", exp.Time.Format(time.RFC3339))
		}
	}

	return nil
}

func (c *Client) debugLog(format string, args ...interface{}) {
	if c.debug {
		log.Printf(format, args...)
	}
}

// List retrieves all rows of a collection matching opts.
func (c *Client) List(ctx context.Context, collection string, opts ListOptions) ([]json.RawMessage, error) {
	q := url.Values{}
	if opts.OrderBy != "" {
		dir := "asc"
		if opts.Descending {
			dir = "desc"
		}
		q.Set("order", opts.OrderBy+"."+dir)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	for col, val := range opts.Filters {
		q.Set(col, "eq."+val)
	}

	body, err := c.do(ctx, http.MethodGet, "list", collection, q, nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &GatewayError{Op: "list", Collection: collection, Message: "malformed response", Err: err}
	}
	return rows, nil
}

// Get retrieves a single row by id. Zero matches yield a NotFoundError.
func (c *Client) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)

	body, err := c.do(ctx, http.MethodGet, "get", collection, q, nil)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &GatewayError{Op: "get", Collection: collection, Message: "malformed response", Err: err}
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Collection: collection, ID: id}
	}
	return rows[0], nil
}

// Insert creates a row and returns it with server-assigned id/timestamps.
func (c *Client) Insert(ctx context.Context, collection string, row any) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "insert", collection, nil, row)
	if err != nil {
		return nil, err
	}
	return singleRow("insert", collection, body)
}

// Update patches a row by id and returns the new row state.
func (c *Client) Update(ctx context.Context, collection, id string, fields any) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("id", "eq."+id)

	body, err := c.do(ctx, http.MethodPatch, "update", collection, q, fields)
	if err != nil {
		return nil, err
	}
	row, err := singleRow("update", collection, body)
	if err != nil {
		return nil, &NotFoundError{Collection: collection, ID: id}
	}
	return row, nil
}

// Delete removes a row by id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)

	_, err := c.do(ctx, http.MethodDelete, "delete", collection, q, nil)
	return err
}

// singleRow unwraps a returned representation, which arrives either as an
// object or as a one-element array depending on the store.
func singleRow(op, collection string, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, &GatewayError{Op: op, Collection: collection, Message: "malformed response", Err: err}
		}
		if len(rows) == 0 {
			return nil, &GatewayError{Op: op, Collection: collection, Message: "empty representation"}
		}
		return rows[0], nil
	}
	return json.RawMessage(trimmed), nil
}

func (c *Client) do(ctx context.Context, method, op, collection string, query url.Values, payload any) ([]byte, error) {
	u := c.baseURL + restPrefix + "/" + collection
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &GatewayError{Op: op, Collection: collection, Message: "encode payload", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, &GatewayError{Op: op, Collection: collection, Err: err}
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	c.debugLog("DEBUG: gateway %s %s %s", op, method, u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Collection: collection, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &GatewayError{Op: op, Collection: collection, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Collection: collection}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &GatewayError{
			Op:         op,
			Collection: collection,
			StatusCode: resp.StatusCode,
			Message:    snippet(body),
		}
	}

	return body, nil
}

// snippet truncates an error body for inclusion in error messages.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
