// Package remote is the boundary to the authoritative networked store.
//
// The store is exposed through collection-style operations (select,
// insert, update, delete, upsert) scoped to a named table, in the shape
// of a PostgREST-style JSON API. Errors carry a machine-readable code;
// the client maps "relation does not exist" and "no rows" onto distinct
// sentinels so the sync engine can degrade rather than fail blindly.
//
// Nothing in this package holds local locks: callers read local state,
// release it, then talk to the network through here.
package remote

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
)

// Row is one record as the remote store sees it.
type Row = map[string]any

// Filter is an equality/range predicate on one column.
type Filter struct {
	Column string
	// Op is one of eq, neq, lt, lte, gt, gte.
	Op    string
	Value string
}

// Eq builds the common equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// SelectOptions shape a select query.
type SelectOptions struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Client talks to the remote store over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Client for the store at baseURL authenticated by
// apiKey. A nil httpClient gets a 10-second-timeout default; the bounded
// timeout keeps every remote call from hanging.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// Select returns the rows of table matching the given options.
func (c *Client) Select(ctx context.Context, table string, opts SelectOptions) ([]Row, error) {
	u := c.tableURL(table, opts.Filters)
	q := u.Query()
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
	u.RawQuery = q.Encode()

	var rows []Row
	if err := c.do(ctx, http.MethodGet, u.String(), nil, "", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectSingle returns exactly one row, or ErrNoRows.
func (c *Client) SelectSingle(ctx context.Context, table string, filters []Filter) (Row, error) {
	rows, err := c.Select(ctx, table, SelectOptions{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRows, table)
	}
	return rows[0], nil
}

// Insert adds one row and returns the stored representation, including
// any server-assigned columns such as the canonical id.
func (c *Client) Insert(ctx context.Context, table string, row Row) (Row, error) {
	u := c.tableURL(table, nil)
	var out []Row
	if err := c.do(ctx, http.MethodPost, u.String(), row, "return=representation", &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: insert into %s returned no representation", ErrRemoteUnavailable, table)
	}
	return out[0], nil
}

// Upsert inserts or merges one row keyed by its primary key and returns
// the stored representation.
func (c *Client) Upsert(ctx context.Context, table string, row Row) (Row, error) {
	u := c.tableURL(table, nil)
	var out []Row
	prefer := "resolution=merge-duplicates,return=representation"
	if err := c.do(ctx, http.MethodPost, u.String(), row, prefer, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: upsert into %s returned no representation", ErrRemoteUnavailable, table)
	}
	return out[0], nil
}

// Update applies a partial patch to every row matching the filters and
// returns how many rows changed.
func (c *Client) Update(ctx context.Context, table string, filters []Filter, patch Row) (int, error) {
	u := c.tableURL(table, filters)
	var out []Row
	if err := c.do(ctx, http.MethodPatch, u.String(), patch, "return=representation", &out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// Delete removes every row matching the filters and returns how many
// rows were removed. Deleting nothing is not an error.
func (c *Client) Delete(ctx context.Context, table string, filters []Filter) (int, error) {
	u := c.tableURL(table, filters)
	var out []Row
	if err := c.do(ctx, http.MethodDelete, u.String(), nil, "return=representation", &out); err != nil {
		return 0, err
	}
	return len(out), nil
}

func (c *Client) tableURL(table string, filters []Filter) *url.URL {
	u, _ := url.Parse(c.baseURL + "/rest/v1/" + table)
	q := u.Query()
	for _, f := range filters {
		q.Add(f.Column, f.Op+"."+f.Value)
	}
	u.RawQuery = q.Encode()
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, prefer string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrRemoteUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr := json.Unmarshal(data, apiErr); decodeErr != nil || apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return fmt.Errorf("%s %s: %w", method, rawURL, apiErr)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrRemoteUnavailable, err)
		}
	}
	return nil
}
