// Package kdocs implements domain.Gateway against a kdocs AirScript task
// endpoint. Every operation is a POST of {"Context":{"argv":{...}}} with a
// token header; the script's return value comes back under data.result.
package kdocs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mingfai/stockledger/internal/domain"
)

// Client is the HTTP client for the remote ledger script.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// Config holds the endpoint and credential for the remote ledger.
type Config struct {
	// Endpoint is the full sync_task URL of the AirScript.
	Endpoint string
	// Token is the AirScript-Token credential.
	Token string
	// Timeout bounds each request; zero means 30 seconds.
	Timeout time.Duration
}

// New creates a new Client for the given endpoint and token.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Login verifies credentials against the remote ledger. The script returns a
// plain boolean.
func (c *Client) Login(ctx context.Context, name, password string) error {
	result, err := c.call(ctx, map[string]any{"api": "login", "name": name, "pw": password})
	if err != nil {
		return fmt.Errorf("kdocs: login %s: %w", name, err)
	}

	var ok bool
	if err := json.Unmarshal(result, &ok); err != nil {
		return fmt.Errorf("kdocs: decode login result: %w", err)
	}
	if !ok {
		return fmt.Errorf("kdocs: login %s: %w", name, domain.ErrUnauthorized)
	}
	return nil
}

// Version returns the current revision token of the remote dataset. The
// token is opaque; the script may send it as a string or a number.
func (c *Client) Version(ctx context.Context) (domain.VersionToken, error) {
	result, err := c.call(ctx, map[string]any{"api": "getVer"})
	if err != nil {
		return "", fmt.Errorf("kdocs: get version: %w", err)
	}

	var tok flexToken
	if err := json.Unmarshal(result, &tok); err != nil {
		return "", fmt.Errorf("kdocs: decode version: %w", err)
	}
	return domain.VersionToken(tok), nil
}

// AllRecords fetches the complete record set and converts it to domain
// records, failing fast on structurally malformed documents.
func (c *Client) AllRecords(ctx context.Context) ([]domain.OrderRecord, error) {
	result, err := c.call(ctx, map[string]any{"api": "getData"})
	if err != nil {
		return nil, fmt.Errorf("kdocs: get all records: %w", err)
	}

	var apiRecords []apiRecord
	if err := json.Unmarshal(result, &apiRecords); err != nil {
		return nil, fmt.Errorf("kdocs: decode records: %w", err)
	}

	records := make([]domain.OrderRecord, 0, len(apiRecords))
	for i := range apiRecords {
		rec, err := apiRecords[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("kdocs: record %d (%s): %w", i, apiRecords[i].DH, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Submit appends a new record to the remote ledger. The script takes the
// record as a positional [dh, dw, qd] triple.
func (c *Client) Submit(ctx context.Context, record domain.OrderRecord) error {
	result, err := c.call(ctx, map[string]any{
		"api":  "update",
		"data": fromDomain(record),
	})
	if err != nil {
		return fmt.Errorf("kdocs: submit %s: %w", record.ID, err)
	}

	// The script's return value is unspecified except that an explicit false
	// means the write was rejected.
	var ok bool
	if err := json.Unmarshal(result, &ok); err == nil && !ok {
		return fmt.Errorf("kdocs: submit %s: rejected by remote", record.ID)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// rpcRequest is the AirScript invocation envelope.
type rpcRequest struct {
	Context rpcContext `json:"Context"`
}

type rpcContext struct {
	Argv any `json:"argv"`
}

// rpcResponse is the AirScript response envelope; the script's return value
// is nested under data.result.
type rpcResponse struct {
	Data struct {
		Result json.RawMessage `json:"result"`
	} `json:"data"`
}

// call posts one AirScript invocation and returns the raw script result.
func (c *Client) call(ctx context.Context, argv map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{Context: rpcContext{Argv: argv}})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AirScript-Token", c.token)
	// Correlation ID so failing calls can be matched across logs.
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope.Data.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.Gateway = (*Client)(nil)
