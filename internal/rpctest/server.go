// Package rpctest runs an in-process DataService speaking msgpack-RPC and
// JSON-RPC over HTTP, backed by an in-memory bucket store.
package rpctest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/basekick-labs/mkts/pkg/client"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Options configure a Server
type Options struct {
	// GzipResponses compresses replies when the client accepts gzip
	GzipResponses bool
	Version       string
	Timezone      string
	Logger        zerolog.Logger
}

// Server is a fake DataService bound to 127.0.0.1 on a random port.
type Server struct {
	app    *fiber.App
	ln     net.Listener
	store  *Store
	opts   Options
	logger zerolog.Logger
}

// rpcError is the error object of an RPC envelope
type rpcError struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

func (e *rpcError) Error() string { return e.Message }

type msgpackRequest struct {
	Version string             `msgpack:"jsonrpc"`
	Method  string             `msgpack:"method"`
	Params  msgpack.RawMessage `msgpack:"params"`
	ID      interface{}        `msgpack:"id"`
}

type msgpackResponse struct {
	Version string      `msgpack:"jsonrpc"`
	Result  interface{} `msgpack:"result"`
	Error   *rpcError   `msgpack:"error"`
	ID      interface{} `msgpack:"id"`
}

type jsonRequest struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type jsonResponse struct {
	Version string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
	Error   *rpcError   `json:"error"`
	ID      interface{} `json:"id"`
}

// NewServer starts a server. Close must be called to release the listener.
func NewServer(opts Options) (*Server, error) {
	if opts.Version == "" {
		opts.Version = "rpctest"
	}
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}

	app := fiber.New(fiber.Config{
		AppName:               "mkts rpctest",
		DisableStartupMessage: true,
		BodyLimit:             256 * 1024 * 1024,
	})
	app.Use(recover.New())

	s := &Server{
		app:    app,
		store:  NewStore(),
		opts:   opts,
		logger: opts.Logger.With().Str("component", "rpctest").Logger(),
	}
	app.Post("/rpc", s.handleRPC)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := app.Listener(ln); err != nil {
			s.logger.Debug().Err(err).Msg("Listener stopped")
		}
	}()

	s.logger.Debug().Str("addr", ln.Addr().String()).Msg("Fake DataService started")
	return s, nil
}

// URL returns the server base URL
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String()
}

// Store returns the server's bucket store
func (s *Server) Store() *Store { return s.store }

// Close shuts the server down
func (s *Server) Close() error {
	err := s.app.Shutdown()
	// Shutdown does not release a listener that is not being served yet
	_ = s.ln.Close()
	return err
}

func (s *Server) handleRPC(c *fiber.Ctx) error {
	// Raw body: gzip is handled here rather than by fasthttp
	payload := c.Request().Body()
	if len(payload) >= 2 && payload[0] == 0x1f && payload[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("invalid gzip body: %v", err))
		}
		defer zr.Close()
		if payload, err = io.ReadAll(zr); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("invalid gzip body: %v", err))
		}
	}

	var (
		body        []byte
		contentType string
		err         error
	)
	if strings.Contains(c.Get(fiber.HeaderContentType), "msgpack") {
		body, err = s.serveMsgpack(payload)
		contentType = "application/x-msgpack"
	} else {
		body, err = s.serveJSON(payload)
		contentType = fiber.MIMEApplicationJSON
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}

	if s.opts.GzipResponses && strings.Contains(c.Get(fiber.HeaderAcceptEncoding), "gzip") {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		body = buf.Bytes()
		c.Set(fiber.HeaderContentEncoding, "gzip")
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(body)
}

func (s *Server) serveMsgpack(payload []byte) ([]byte, error) {
	var req msgpackRequest
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		return msgpack.Marshal(&msgpackResponse{
			Version: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: err.Error()},
		})
	}
	decode := func(v interface{}) error { return msgpack.Unmarshal(req.Params, v) }
	result, rpcErr := s.dispatch(req.Method, decode)
	resp := &msgpackResponse{Version: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return msgpack.Marshal(resp)
}

func (s *Server) serveJSON(payload []byte) ([]byte, error) {
	var req jsonRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return json.Marshal(&jsonResponse{
			Version: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: err.Error()},
		})
	}
	decode := func(v interface{}) error { return json.Unmarshal(req.Params, v) }
	result, rpcErr := s.dispatch(req.Method, decode)
	resp := &jsonResponse{Version: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return json.Marshal(resp)
}

func (s *Server) dispatch(method string, decode func(v interface{}) error) (interface{}, *rpcError) {
	s.logger.Debug().Str("method", method).Msg("RPC request")

	invalid := func(err error) *rpcError {
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	failed := func(err error) *rpcError {
		s.logger.Debug().Err(err).Str("method", method).Msg("RPC failed")
		return &rpcError{Code: codeServerError, Message: err.Error()}
	}

	switch method {
	case "DataService.Query":
		var req client.MultiQueryRequest
		if err := decode(&req); err != nil {
			return nil, invalid(err)
		}
		resp, err := s.store.Query(&req)
		if err != nil {
			return nil, failed(err)
		}
		resp.Version = s.opts.Version
		resp.Timezone = s.opts.Timezone
		return resp, nil

	case "DataService.Write":
		var req client.MultiWriteRequest
		if err := decode(&req); err != nil {
			return nil, invalid(err)
		}
		return s.store.Write(&req, s.opts.Version), nil

	case "DataService.Create":
		var req client.MultiCreateRequest
		if err := decode(&req); err != nil {
			return nil, invalid(err)
		}
		return s.store.Create(&req, s.opts.Version), nil

	case "DataService.Destroy":
		var req client.MultiKeyRequest
		if err := decode(&req); err != nil {
			return nil, invalid(err)
		}
		return s.store.Destroy(&req, s.opts.Version), nil

	case "DataService.ListSymbols":
		var req client.ListSymbolsRequest
		if err := decode(&req); err != nil {
			return nil, invalid(err)
		}
		return &client.ListSymbolsResponse{Results: s.store.ListSymbols(req.Format)}, nil

	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("rpc: can't find method %q", method)}
	}
}
