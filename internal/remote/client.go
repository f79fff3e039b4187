// Package remote is the HTTP client for the progress API served by cmd/api.
package remote

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
	"time"

	"audio-eval/internal/schemas"
)

// ErrStatus is wrapped by every non-2xx response.
var ErrStatus = errors.New("remote: unexpected status")

const defaultTimeout = 10 * time.Second

type Client struct {
	base  string
	token string
	http  *http.Client
}

type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health reports whether the API answered its health probe.
func (c *Client) Health(ctx context.Context) error {
	var h schemas.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return err
	}
	if h.Status != "ok" {
		return fmt.Errorf("remote: health status %q", h.Status)
	}
	return nil
}

func (c *Client) ListUsers(ctx context.Context) ([]schemas.User, error) {
	var users []schemas.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) CreateUser(ctx context.Context, id, name string) (schemas.User, error) {
	var out schemas.CreateUserResponse
	req := schemas.CreateUserRequest{ID: &id, Name: &name}
	if err := c.do(ctx, http.MethodPost, "/api/users", req, &out); err != nil {
		return schemas.User{}, err
	}
	return out.User, nil
}

// GetProgress fetches the stored record for one address. found is false when
// the server holds no record (its data field is null).
func (c *Client) GetProgress(ctx context.Context, tool, experiment, userID string) (data json.RawMessage, found bool, err error) {
	var out schemas.ProgressData
	if err := c.do(ctx, http.MethodGet, progressPath(tool, experiment, userID), nil, &out); err != nil {
		return nil, false, err
	}
	if len(out.Data) == 0 || string(out.Data) == "null" {
		return nil, false, nil
	}
	return out.Data, true, nil
}

func (c *Client) SaveProgress(ctx context.Context, tool, experiment, userID string, data json.RawMessage) error {
	return c.do(ctx, http.MethodPost, progressPath(tool, experiment, userID), data, nil)
}

func (c *Client) DeleteProgress(ctx context.Context, tool, experiment, userID string) error {
	return c.do(ctx, http.MethodDelete, progressPath(tool, experiment, userID), nil, nil)
}

func (c *Client) Export(ctx context.Context, userID string) (schemas.UserExport, error) {
	var out schemas.UserExport
	err := c.do(ctx, http.MethodGet, "/api/progress/export/"+url.PathEscape(userID), nil, &out)
	return out, err
}

func (c *Client) Archive(ctx context.Context, userID string) (schemas.ArchiveAccepted, error) {
	var out schemas.ArchiveAccepted
	err := c.do(ctx, http.MethodPost, "/api/progress/export/"+url.PathEscape(userID)+"/archive", nil, &out)
	return out, err
}

func (c *Client) ListArchives(ctx context.Context, userID string) ([]schemas.ArchiveInfo, error) {
	var out []schemas.ArchiveInfo
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/archives", nil, &out)
	return out, err
}

func progressPath(tool, experiment, userID string) string {
	return fmt.Sprintf("/api/progress/%s/%s/%s", url.PathEscape(tool), url.PathEscape(experiment), url.PathEscape(userID))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		var b []byte
		if raw, ok := body.(json.RawMessage); ok {
			b = raw
		} else {
			var err error
			if b, err = json.Marshal(body); err != nil {
				return err
			}
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("%w: %s %s -> %d: %s", ErrStatus, method, path, res.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
