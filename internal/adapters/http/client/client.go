// Package client talks to a running arena server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/ledger"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/report"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrUnexpectedResponse is returned when the server answers with a body the
// client cannot decode.
var ErrUnexpectedResponse = errors.New("unexpected response")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

// VoteResult is the server's answer to a vote. Warning is set when the vote
// committed but the ratings were not persisted remotely.
type VoteResult struct {
	ledger.Receipt
	Warning string `json:"warning,omitempty"`
}

// Client wraps http.Client with a base URL.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Vote submits a vote.
func (c *Client) Vote(ctx context.Context, req model.VoteRequest) (VoteResult, error) {
	var out VoteResult
	err := c.do(ctx, http.MethodPost, "/votes", nil, req, &out)
	return out, err
}

// HasVoted asks whether the server's identity already voted on the pair.
func (c *Client) HasVoted(ctx context.Context, a, b, category string) (bool, error) {
	q := url.Values{"model_a_id": {a}, "model_b_id": {b}, "category": {category}}
	var out struct {
		Voted bool `json:"voted"`
	}
	err := c.do(ctx, http.MethodGet, "/votes/check", q, nil, &out)
	return out.Voted, err
}

// Pairs lists the voted pair keys for a category.
func (c *Client) Pairs(ctx context.Context, category string) ([]string, error) {
	var out struct {
		Pairs []string `json:"pairs"`
	}
	err := c.do(ctx, http.MethodGet, "/votes/pairs", url.Values{"category": {category}}, nil, &out)
	return out.Pairs, err
}

// Leaderboard fetches up to limit ranked entries sorted by sortBy.
func (c *Client) Leaderboard(ctx context.Context, sortBy string, limit int, ascending bool) ([]repository.Entry, error) {
	q := url.Values{}
	if sortBy != "" {
		q.Set("sort", sortBy)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if ascending {
		q.Set("order", "asc")
	}
	var out []repository.Entry
	err := c.do(ctx, http.MethodGet, "/leaderboard", q, nil, &out)
	return out, err
}

// Candidate fetches the rank of one candidate.
func (c *Client) Candidate(ctx context.Context, id, sortBy string) (repository.Entry, error) {
	q := url.Values{}
	if sortBy != "" {
		q.Set("sort", sortBy)
	}
	var out repository.Entry
	err := c.do(ctx, http.MethodGet, "/candidates/"+url.PathEscape(id), q, nil, &out)
	return out, err
}

// Errors lists active notices.
func (c *Client) Errors(ctx context.Context) ([]report.Entry, error) {
	var out []report.Entry
	err := c.do(ctx, http.MethodGet, "/errors", nil, nil, &out)
	return out, err
}

// Identity returns the server's voter identity.
func (c *Client) Identity(ctx context.Context) (string, error) {
	return c.identity(ctx, http.MethodGet, "/identity")
}

// ResetIdentity asks the server for a new voter identity.
func (c *Client) ResetIdentity(ctx context.Context) (string, error) {
	return c.identity(ctx, http.MethodPost, "/identity/reset")
}

func (c *Client) identity(ctx context.Context, method, path string) (string, error) {
	var out struct {
		VoterID string `json:"user_browser_id"`
	}
	err := c.do(ctx, method, path, nil, nil, &out)
	return out.VoterID, err
}

// Sync triggers a resync with the remote store.
func (c *Client) Sync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/sync", nil, nil, nil)
}

// Health checks that the server answers its metrics endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	return nil
}
