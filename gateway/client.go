// Package gateway is the HTTP adapter for the remote record/object
// store. The core consumes it through the clipfeed.RecordGateway
// interface; nothing in here is feed logic.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/haileyok/clipfeed"
	"github.com/haileyok/clipfeed/models"
	"go.uber.org/ratelimit"
)

type Client struct {
	cli         *http.Client
	host        string
	rl          ratelimit.Limiter
	tokenSource func() string
}

type Args struct {
	Host string

	// TokenSource supplies the current session token per request, so a
	// re-login mid-session is picked up without rebuilding the client.
	TokenSource func() string

	// Timeout for each request. Zero means no client-side timeout; the
	// caller's context is the only bound.
	Timeout time.Duration

	// RequestsPerSecond caps outbound request rate. Zero means 10.
	RequestsPerSecond int
}

func NewClient(args *Args) *Client {
	rps := args.RequestsPerSecond
	if rps == 0 {
		rps = 10
	}

	return &Client{
		cli: &http.Client{
			Timeout: args.Timeout,
		},
		host:        args.Host,
		rl:          ratelimit.New(rps),
		tokenSource: args.TokenSource,
	}
}

var _ clipfeed.RecordGateway = (*Client)(nil)

func (c *Client) CreateRecord(ctx context.Context, kind string, payload map[string]any) (*models.Record, error) {
	var rec models.Record
	if err := c.doJSON(ctx, "POST", "/v1/records/"+kind, payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) UpdateRecord(ctx context.Context, kind, id string, payload map[string]any) (*models.Record, error) {
	var rec models.Record
	if err := c.doJSON(ctx, "PATCH", "/v1/records/"+kind+"/"+id, payload, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) ListRecords(ctx context.Context, kind string, filter clipfeed.RecordFilter) ([]models.Record, error) {
	path := "/v1/records/" + kind
	if filter.PostID != "" {
		path += "?post_id=" + url.QueryEscape(filter.PostID)
	}

	var recs []models.Record
	if err := c.doJSON(ctx, "GET", path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) DeleteRecord(ctx context.Context, kind, id string) error {
	return c.doJSON(ctx, "DELETE", "/v1/records/"+kind+"/"+id, nil, nil)
}

func (c *Client) UploadObject(ctx context.Context, name string, blob []byte) (string, error) {
	c.rl.Take()

	req, err := http.NewRequestWithContext(ctx, "POST", c.host+"/v1/objects?name="+url.QueryEscape(name), bytes.NewReader(blob))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.authorize(req)

	resp, err := c.cli.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("object upload returned non-200 response code: %d", resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	return body.ID, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectID string) error {
	return c.doJSON(ctx, "DELETE", "/v1/objects/"+objectID, nil, nil)
}

// ResolveObjectURL is pure; rendering uses it to build playable and
// displayable sources.
func (c *Client) ResolveObjectURL(objectID string) string {
	if objectID == "" {
		return ""
	}
	return c.host + "/v1/objects/" + objectID + "/view"
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	c.rl.Take()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s returned non-200 response code: %d", method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.tokenSource == nil {
		return
	}
	if token := c.tokenSource(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
