// Package client talks to a MarketStore-style DataService over msgpack-RPC or
// JSON-RPC and turns its multiplexed column replies into per-dataset tables.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/basekick-labs/mkts/pkg/codec"
	"github.com/basekick-labs/mkts/pkg/models"
	"github.com/rs/zerolog"
)

const (
	// SymbolFormat lists bare symbols
	SymbolFormat = "symbol"
	// KeyFormat lists full dataset keys
	KeyFormat = "tbk"
)

// Config holds configuration for the client
type Config struct {
	Endpoint        string
	Protocol        string // msgpack or json
	Timeout         time.Duration
	Compression     string // none or gzip
	MaxResponseSize int64
	// TruncateStrings cuts over-length strings on write instead of failing
	TruncateStrings bool
	HTTPClient      *http.Client
	Logger          zerolog.Logger
	// BreakerFailures consecutive unreachable-server failures open the breaker
	// for BreakerCooldown. Zero disables it.
	BreakerFailures int
	BreakerCooldown time.Duration
	// Transport overrides the HTTP transport built from the fields above
	Transport Transport
}

// Client is a DataService client. It is safe for concurrent use.
type Client struct {
	transport       Transport
	truncateStrings bool
	logger          zerolog.Logger
}

// NewClient creates a client from cfg.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client config is required")
	}
	t := cfg.Transport
	if t == nil {
		ht, err := NewHTTPTransport(HTTPConfig{
			Endpoint:        cfg.Endpoint,
			Protocol:        cfg.Protocol,
			Compression:     cfg.Compression,
			Timeout:         cfg.Timeout,
			MaxResponseSize: cfg.MaxResponseSize,
			HTTPClient:      cfg.HTTPClient,
			Logger:          cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		t = ht
	}
	if cfg.BreakerFailures > 0 {
		t = NewBreakerTransport(t, cfg.BreakerFailures, cfg.BreakerCooldown, cfg.Logger)
	}
	c := &Client{
		transport:       t,
		truncateStrings: cfg.TruncateStrings,
		logger:          cfg.Logger.With().Str("component", "mkts-client").Logger(),
	}
	c.logger.Debug().
		Str("endpoint", cfg.Endpoint).
		Str("protocol", cfg.Protocol).
		Msg("Client initialized")
	return c, nil
}

// Query runs one or more queries in a single call. Entries that fail to decode
// carry their error in Reply.Results; the returned error covers the call itself.
func (c *Client) Query(ctx context.Context, params ...*models.QueryParams) (*Reply, error) {
	req, err := BuildMultiQueryRequest(params...)
	if err != nil {
		return nil, err
	}
	var resp MultiQueryResponse
	if err := c.transport.Call(ctx, "Query", req, &resp); err != nil {
		return nil, err
	}
	reply, err := Assemble(req.Requests, &resp)
	if err != nil {
		return nil, err
	}
	for i, res := range reply.Results {
		if res.Err != nil {
			c.logger.Warn().
				Err(res.Err).
				Int("response", i).
				Str("destination", req.Requests[i].Destination).
				Msg("Failed to assemble query response")
		}
	}
	return reply, nil
}

// QueryTables runs the queries and merges their tables. A non-nil error with a
// non-nil map means some entries failed.
func (c *Client) QueryTables(ctx context.Context, params ...*models.QueryParams) (map[models.DatasetKey]*codec.RecordBatch, error) {
	reply, err := c.Query(ctx, params...)
	if err != nil {
		return nil, err
	}
	return reply.Tables()
}

// Write writes batch under key. The batch must start with the int64 Epoch column.
func (c *Client) Write(ctx context.Context, key models.DatasetKey, batch *codec.RecordBatch, isVariableLength bool) error {
	return c.WriteMany(ctx, map[models.DatasetKey]*codec.RecordBatch{key: batch}, isVariableLength)
}

// WriteMany writes several single-symbol datasets sharing one column layout in
// a single request.
func (c *Client) WriteMany(ctx context.Context, batches map[models.DatasetKey]*codec.RecordBatch, isVariableLength bool) error {
	keys := make([]models.DatasetKey, 0, len(batches))
	for k := range batches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	req, lost, err := BuildWriteRequest(keys, batches, WriteOptions{
		IsVariableLength: isVariableLength,
		TruncateStrings:  c.truncateStrings,
	})
	if err != nil {
		return err
	}
	for key, cols := range lost {
		for col, idx := range cols {
			c.logger.Warn().
				Str("dataset", key.String()).
				Str("column", col).
				Ints("rows", idx).
				Msg("Truncated string values on write")
		}
	}

	var resp MultiServerResponse
	if err := c.transport.Call(ctx, "Write", req, &resp); err != nil {
		return err
	}
	return serverErrors("DataService.Write", &resp)
}

// ListSymbols lists the symbols known to the server, or the full dataset keys
// when format is KeyFormat.
func (c *Client) ListSymbols(ctx context.Context, format string) ([]string, error) {
	if format == "" {
		format = SymbolFormat
	}
	var resp ListSymbolsResponse
	if err := c.transport.Call(ctx, "ListSymbols", &ListSymbolsRequest{Format: format}, &resp); err != nil {
		return nil, err
	}
	sort.Strings(resp.Results)
	return resp.Results, nil
}

// Create creates a bucket for key with the given column layout.
func (c *Client) Create(ctx context.Context, key models.DatasetKey, specs []codec.ColumnSpec, isVariableLength bool) error {
	req, err := BuildCreateRequest(key, specs, isVariableLength)
	if err != nil {
		return err
	}
	var resp MultiServerResponse
	if err := c.transport.Call(ctx, "Create", req, &resp); err != nil {
		return err
	}
	return serverErrors("DataService.Create", &resp)
}

// Destroy removes the bucket for key.
func (c *Client) Destroy(ctx context.Context, key models.DatasetKey) error {
	if key.IsZero() {
		return fmt.Errorf("dataset key is required")
	}
	req := &MultiKeyRequest{Requests: []KeyRequest{{Key: key.WireString()}}}
	var resp MultiServerResponse
	if err := c.transport.Call(ctx, "Destroy", req, &resp); err != nil {
		return err
	}
	return serverErrors("DataService.Destroy", &resp)
}
