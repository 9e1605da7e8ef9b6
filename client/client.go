// Package client talks to a vff server over its HTTP API. A Client
// satisfies backend.Backend, so callers can switch between a local
// repository and a remote one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vff/internal/backend"
	"vff/internal/errors"
	"vff/internal/revision"
	"vff/internal/validation"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ backend.Backend = (*Client)(nil)

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) AddRevision(ctx context.Context, content []byte, path, message, author string) (*revision.Revision, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/documents/", path, nil, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set(validation.HeaderAuthor, validation.EncodeHeader(author))
	req.Header.Set(validation.HeaderMessage, validation.EncodeHeader(message))
	req.Header.Set("Content-Type", "application/octet-stream")

	var rev revision.Revision
	if err := c.doJSON(req, http.StatusCreated, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *Client) DelDocument(ctx context.Context, path, message, author string) (*revision.Revision, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/documents/", path, nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(validation.HeaderAuthor, validation.EncodeHeader(author))
	req.Header.Set(validation.HeaderMessage, validation.EncodeHeader(message))

	var rev revision.Revision
	if err := c.doJSON(req, http.StatusOK, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *Client) ListRevisions(ctx context.Context, path string, count, offset int) ([]*revision.Revision, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	q.Set("offset", strconv.Itoa(offset))
	req, err := c.newRequest(ctx, http.MethodGet, "/api/revisions/", path, q, nil)
	if err != nil {
		return nil, err
	}

	revs := []*revision.Revision{}
	if err := c.doJSON(req, http.StatusOK, &revs); err != nil {
		return nil, err
	}
	return revs, nil
}

func (c *Client) GetRevision(ctx context.Context, path, id string) (string, error) {
	q := url.Values{}
	if id != "" {
		q.Set("rev", id)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/documents/", path, q, nil)
	if err != nil {
		return "", err
	}
	return c.doText(req)
}

// GetRevisionInfo returns the revision record for id, or the latest one.
func (c *Client) GetRevisionInfo(ctx context.Context, path, id string) (*revision.Revision, error) {
	q := url.Values{}
	if id != "" {
		q.Set("rev", id)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/info/", path, q, nil)
	if err != nil {
		return nil, err
	}

	var rev revision.Revision
	if err := c.doJSON(req, http.StatusOK, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *Client) GetDiff(ctx context.Context, path, id1, id2 string) (string, error) {
	q := url.Values{}
	q.Set("from", id1)
	q.Set("to", id2)
	req, err := c.newRequest(ctx, http.MethodGet, "/api/diff/", path, q, nil)
	if err != nil {
		return "", err
	}
	return c.doText(req)
}

func (c *Client) Stats() (backend.Stats, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return backend.Stats{}, errors.Configuration(err, "building request")
	}

	var st backend.Stats
	if err := c.doJSON(req, http.StatusOK, &st); err != nil {
		return backend.Stats{}, err
	}
	return st, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, route, path string, q url.Values, body io.Reader) (*http.Request, error) {
	if err := revision.ValidatePath(path); err != nil {
		return nil, err
	}

	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := c.baseURL + route + strings.Join(segments, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Configuration(err, "building request for %s", path)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, want int) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.IO(err, "%s %s", req.Method, req.URL.Path)
	}
	if resp.StatusCode != want {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, want int, v any) error {
	resp, err := c.do(req, want)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.IO(err, "decoding response of %s", req.URL.Path)
	}
	return nil
}

func (c *Client) doText(req *http.Request) (string, error) {
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.IO(err, "reading response of %s", req.URL.Path)
	}
	return string(data), nil
}

// decodeError rebuilds the typed error a server sent, so errors.Is works
// the same against a Client as against a local repository.
func decodeError(resp *http.Response) error {
	var e errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Type == "" {
		return &errors.Error{
			Type:    errors.ErrorTypeInternal,
			Message: fmt.Sprintf("unexpected status: %s", resp.Status),
			Code:    resp.StatusCode,
		}
	}
	e.Code = resp.StatusCode
	return &e
}
