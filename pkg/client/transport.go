package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// ProtocolMsgpack encodes envelopes and bodies with MessagePack
	ProtocolMsgpack = "msgpack"
	// ProtocolJSON encodes envelopes and bodies with JSON
	ProtocolJSON = "json"

	// CompressionNone sends request bodies as is
	CompressionNone = "none"
	// CompressionGzip gzips request bodies
	CompressionGzip = "gzip"

	rpcPath        = "/rpc"
	rpcVersion     = "2.0"
	servicePrefix  = "DataService."
	serverErrCode  = -32000
	maxErrBodySize = 4096
)

// Transport performs one RPC round trip. params is encoded as the request's
// params object and the result object is decoded into reply.
type Transport interface {
	Call(ctx context.Context, method string, params, reply interface{}) error
}

// rpcError is the error object of an RPC envelope
type rpcError struct {
	Code    int         `json:"code" msgpack:"code"`
	Message string      `json:"message" msgpack:"message"`
	Data    interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

type wireCodec interface {
	contentType() string
	encodeRequest(method, id string, params interface{}) ([]byte, error)
	// decodeResponse returns the raw result and the error object of an envelope.
	// A nil result means null or absent.
	decodeResponse(body []byte) ([]byte, *rpcError, error)
	decodeResult(raw []byte, reply interface{}) error
}

func newWireCodec(protocol string) (wireCodec, error) {
	switch strings.ToLower(protocol) {
	case "", ProtocolMsgpack:
		return msgpackCodec{}, nil
	case ProtocolJSON:
		return jsonCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported protocol %q (use %s or %s)", protocol, ProtocolMsgpack, ProtocolJSON)
	}
}

type msgpackCodec struct{}

type msgpackRequest struct {
	Version string      `msgpack:"jsonrpc"`
	Method  string      `msgpack:"method"`
	Params  interface{} `msgpack:"params"`
	ID      string      `msgpack:"id"`
}

type msgpackResponse struct {
	Result msgpack.RawMessage `msgpack:"result"`
	Error  msgpack.RawMessage `msgpack:"error"`
}

func (msgpackCodec) contentType() string { return "application/x-msgpack" }

func (msgpackCodec) encodeRequest(method, id string, params interface{}) ([]byte, error) {
	return msgpack.Marshal(&msgpackRequest{Version: rpcVersion, Method: method, Params: params, ID: id})
}

func (msgpackCodec) decodeResponse(body []byte) ([]byte, *rpcError, error) {
	var resp msgpackResponse
	if err := msgpack.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode msgpack envelope: %w", err)
	}
	if !msgpackNil(resp.Error) {
		e := &rpcError{}
		if err := msgpack.Unmarshal(resp.Error, e); err != nil {
			// servers may send a bare string
			var msg string
			if err := msgpack.Unmarshal(resp.Error, &msg); err != nil {
				msg = fmt.Sprintf("%x", []byte(resp.Error))
			}
			e = &rpcError{Code: serverErrCode, Message: msg}
		}
		return nil, e, nil
	}
	if msgpackNil(resp.Result) {
		return nil, nil, nil
	}
	return resp.Result, nil, nil
}

func (msgpackCodec) decodeResult(raw []byte, reply interface{}) error {
	return msgpack.Unmarshal(raw, reply)
}

func msgpackNil(raw msgpack.RawMessage) bool {
	return len(raw) == 0 || (len(raw) == 1 && raw[0] == 0xc0)
}

type jsonCodec struct{}

type jsonRequest struct {
	Version string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      string      `json:"id"`
}

type jsonResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (jsonCodec) contentType() string { return "application/json" }

func (jsonCodec) encodeRequest(method, id string, params interface{}) ([]byte, error) {
	return json.Marshal(&jsonRequest{Version: rpcVersion, Method: method, Params: params, ID: id})
}

func (jsonCodec) decodeResponse(body []byte) ([]byte, *rpcError, error) {
	var resp jsonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode json envelope: %w", err)
	}
	if !jsonNil(resp.Error) {
		e := &rpcError{}
		if err := json.Unmarshal(resp.Error, e); err != nil {
			var msg string
			if err := json.Unmarshal(resp.Error, &msg); err != nil {
				msg = string(resp.Error)
			}
			e = &rpcError{Code: serverErrCode, Message: msg}
		}
		return nil, e, nil
	}
	if jsonNil(resp.Result) {
		return nil, nil, nil
	}
	return resp.Result, nil, nil
}

func (jsonCodec) decodeResult(raw []byte, reply interface{}) error {
	return json.Unmarshal(raw, reply)
}

func jsonNil(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// HTTPConfig configures an HTTPTransport
type HTTPConfig struct {
	// Endpoint is the server base URL, e.g. http://localhost:5993
	Endpoint        string
	Protocol        string
	Compression     string
	Timeout         time.Duration
	MaxResponseSize int64
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

// HTTPTransport posts RPC envelopes to <endpoint>/rpc
type HTTPTransport struct {
	url             string
	codec           wireCodec
	gzipRequests    bool
	maxResponseSize int64
	httpClient      *http.Client
	logger          zerolog.Logger
}

// NewHTTPTransport creates a transport for cfg.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	codec, err := newWireCodec(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	var gz bool
	switch strings.ToLower(cfg.Compression) {
	case "", CompressionNone:
	case CompressionGzip:
		gz = true
	default:
		return nil, fmt.Errorf("unsupported compression %q (use %s or %s)", cfg.Compression, CompressionNone, CompressionGzip)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{
		url:             strings.TrimRight(cfg.Endpoint, "/") + rpcPath,
		codec:           codec,
		gzipRequests:    gz,
		maxResponseSize: cfg.MaxResponseSize,
		httpClient:      httpClient,
		logger:          cfg.Logger.With().Str("component", "mkts-transport").Logger(),
	}, nil
}

// Call implements Transport. Methods without a service prefix get "DataService.".
func (t *HTTPTransport) Call(ctx context.Context, method string, params, reply interface{}) error {
	if !strings.Contains(method, ".") {
		method = servicePrefix + method
	}
	id := uuid.NewString()
	start := time.Now()

	body, err := t.codec.encodeRequest(method, id, params)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	rawSize := len(body)
	if t.gzipRequests {
		if body, err = gzipBytes(body); err != nil {
			return fmt.Errorf("failed to compress %s request: %w", method, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", t.codec.contentType())
	httpReq.Header.Set("Accept", t.codec.contentType())
	httpReq.Header.Set("Accept-Encoding", "gzip")
	if t.gzipRequests {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := t.readBody(resp)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	t.logger.Debug().
		Str("method", method).
		Str("request_id", id).
		Int("request_bytes", rawSize).
		Int("sent_bytes", len(body)).
		Int("response_bytes", len(payload)).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("RPC call completed")

	result, rpcErr, decodeErr := t.codec.decodeResponse(payload)
	if resp.StatusCode != http.StatusOK && (decodeErr != nil || (rpcErr == nil && result == nil)) {
		snippet := payload
		if len(snippet) > maxErrBodySize {
			snippet = snippet[:maxErrBodySize]
		}
		return fmt.Errorf("%s: unexpected HTTP status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: %w", method, decodeErr)
	}
	if rpcErr != nil {
		return &RemoteProtocolError{Method: method, Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data}
	}
	if result == nil {
		return fmt.Errorf("%s: %w", method, ErrNullResult)
	}
	if reply == nil {
		return nil
	}
	if err := t.codec.decodeResult(result, reply); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// readBody reads and, when needed, decompresses the response body, enforcing
// the response size limit on both the wire and decompressed sizes.
func (t *HTTPTransport) readBody(resp *http.Response) ([]byte, error) {
	payload, err := readLimited(resp.Body, t.maxResponseSize)
	if err != nil {
		return nil, err
	}
	gzipped := strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") ||
		(len(payload) >= 2 && payload[0] == 0x1f && payload[1] == 0x8b)
	if !gzipped {
		return payload, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid gzip response: %w", err)
	}
	defer zr.Close()
	out, err := readLimited(zr, t.maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress response: %w", err)
	}
	return out, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, limit)
	}
	return b, nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
