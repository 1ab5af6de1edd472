package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"tipjar/core"
	"tipjar/native/tipjar"
	"tipjar/observability"
	telemetry "tipjar/observability/otel"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeFaucetDisabled = -32002
)

// DefaultMaxRecentTips caps the limit of tipjar_getRecentTips when the server
// configuration does not set one.
const DefaultMaxRecentTips = 500

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	JWTSecret           string
	AllowInsecureCaller bool
	MaxConnections      int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRecentTips       uint64
	Logger              *slog.Logger
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type Server struct {
	node *core.Node
	hub  *EventHub

	jwtSecret           []byte
	allowInsecureCaller bool
	maxConnections      int
	readTimeout         time.Duration
	writeTimeout        time.Duration
	maxRecentTips       uint64
	logger              *slog.Logger
	handlers            map[string]handlerFunc

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer builds a JSON-RPC server over node. hub may be nil, in which case
// the /ws event stream is not mounted.
func NewServer(node *core.Node, hub *EventHub, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRecent := cfg.MaxRecentTips
	if maxRecent == 0 {
		maxRecent = DefaultMaxRecentTips
	}
	s := &Server{
		node:                node,
		hub:                 hub,
		jwtSecret:           []byte(strings.TrimSpace(cfg.JWTSecret)),
		allowInsecureCaller: cfg.AllowInsecureCaller,
		maxConnections:      cfg.MaxConnections,
		readTimeout:         cfg.ReadTimeout,
		writeTimeout:        cfg.WriteTimeout,
		maxRecentTips:       maxRecent,
		logger:              logger.With("component", "rpc"),
	}
	s.handlers = s.tipjarHandlers()
	return s
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeLedgerError maps a failed node operation onto a JSON-RPC error. Ledger
// rejections carry their numeric code.
func (s *Server) writeLedgerError(w http.ResponseWriter, req *RPCRequest, err error) {
	var ledgerErr *tipjar.Error
	switch {
	case errors.As(err, &ledgerErr):
		writeError(w, http.StatusBadRequest, req.ID, int(ledgerErr.Code), err.Error(), map[string]string{"error": ledgerErr.Name})
	case errors.Is(err, core.ErrFaucetDisabled):
		writeError(w, http.StatusForbidden, req.ID, codeFaucetDisabled, err.Error(), nil)
	default:
		s.logger.Error("request failed", slog.String("method", req.Method), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", nil)
	}
}

// Handler returns the HTTP handler serving JSON-RPC on / and, when an event
// hub is configured, the event stream on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return telemetry.WrapHandler(mux, "tipjar-rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	if s.maxConnections > 0 {
		listener = netutil.LimitListener(listener, s.maxConnections)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.writeTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", slog.String("address", listener.Addr().String()))
	return srv.Serve(listener)
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	w.Header().Set("Content-Type", "application/json")
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	method := s.dispatch(rec, r)
	observability.ModuleMetrics().Observe("rpc", method, rec.status, time.Since(start))
	s.logger.Debug("rpc request",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.Int("status", rec.status),
		slog.Duration("duration", time.Since(start)))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) string {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "JSON-RPC requires POST", nil)
		return "invalid"
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return "invalid"
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return "invalid"
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return "invalid"
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return "invalid"
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return "invalid"
	}
	handler, ok := s.handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method), nil)
		return "unknown"
	}
	if s.node == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "node unavailable", nil)
		return req.Method
	}
	handler(w, r, req)
	return req.Method
}
