// Package server exposes an NFC adapter over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/nedpals/davi-nfc-adapter/buildinfo"
	"github.com/sirupsen/logrus"
)

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	sinkTimeout     = 2 * time.Second
)

// WebsocketMessage represents a message broadcast to WebSocket clients.
type WebsocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebsocketRequest represents an incoming request from WebSocket clients.
type WebsocketRequest struct {
	ID      string          `json:"id,omitempty"` // Client-generated request ID
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebsocketResponse represents a response to a WebSocket request.
type WebsocketResponse struct {
	ID      string `json:"id,omitempty"` // Same as request ID
	Type    string `json:"type"`         // Response type (e.g., "writeResponse")
	Success bool   `json:"success"`      // Whether operation succeeded
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"` // Error message if failed
}

// TagSink receives every tag event the server broadcasts.
type TagSink interface {
	Record(ctx context.Context, ev TagEvent) error
}

// Config holds the server configuration
type Config struct {
	Reader    *Reader
	Port      int
	APISecret string // Optional API secret for WebSocket connection
	MDNS      bool   // Advertise the server over mDNS
	Sink      TagSink
	Logger    logrus.FieldLogger
}

// client serializes writes to one websocket connection; broadcasts and
// request responses come from different goroutines.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	log        logrus.FieldLogger
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	startedAt  time.Time

	clients    map[*client]bool
	clientsMux sync.RWMutex
	upgrader   websocket.Upgrader

	handlerRegistry *HandlerRegistry

	mdnsMu     sync.Mutex
	mdnsServer *zeroconf.Server
}

// New creates a new server instance
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		config:  config,
		log:     logger,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlerRegistry: NewHandlerRegistry(),
		startedAt:       time.Now(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: s.Handler(),
	}

	if config.Reader != nil {
		NewNFCHandler(config.Reader, logger).Register(s)
	}

	return s
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// broadcast sends a message to all connected clients
func (s *Server) broadcast(message *WebsocketMessage) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	for c := range s.clients {
		if err := c.send(message); err != nil {
			s.log.WithError(err).Warn("websocket write failed, dropping client")
			c.conn.Close()
			delete(s.clients, c)
		}
	}
}

// BroadcastTagData hands ev to the sink, if any, and sends it to all
// connected WebSocket clients.
func (s *Server) BroadcastTagData(ev TagEvent) {
	if s.config.Sink != nil {
		ctx, cancel := context.WithTimeout(s.ctx, sinkTimeout)
		if err := s.config.Sink.Record(ctx, ev); err != nil {
			s.log.WithError(err).WithField("uid", ev.UID).Warn("failed to record tag")
		}
		cancel()
	}

	s.broadcast(&WebsocketMessage{
		Type:    WSMessageTypeTagData,
		Payload: ev,
	})
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func onlyGet(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	apiV1 := "/api/v1"
	mux.HandleFunc(apiV1+"/health", enableCORS(onlyGet(s.handleHealthCheck)))
	mux.HandleFunc(apiV1+"/status", enableCORS(onlyGet(s.handleStatus)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(buildinfo.DisplayName + " Running"))
	}))

	return mux
}

// Start listens on the configured port and serves until Stop is called.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(l)
}

// Serve starts the lifecycle handlers and serves HTTP on l until Stop is
// called.
func (s *Server) Serve(l net.Listener) error {
	s.log.WithField("addr", l.Addr().String()).Info("starting server")

	if s.config.MDNS {
		port := s.config.Port
		if addr, ok := l.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		if err := s.startMDNS(port); err != nil {
			s.log.WithError(err).Warn("failed to start mDNS service, auto-discovery will not be available")
		}
	}

	s.handlerRegistry.StartLifecycleHandlers(s.ctx)

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.cancel()
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop stops the HTTP server gracefully and disconnects all clients.
func (s *Server) Stop() {
	s.mdnsMu.Lock()
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.log.Info("mDNS service stopped")
	}
	s.mdnsMu.Unlock()

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("server shutdown error")
	}

	s.clientsMux.Lock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
	s.clientsMux.Unlock()
}

// startMDNS registers the adapter as an mDNS service for auto-discovery
func (s *Server) startMDNS(port int) error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsMu.Lock()
	s.mdnsServer = server
	s.mdnsMu.Unlock()
	s.log.WithFields(logrus.Fields{
		"name": MDNSServiceName,
		"type": MDNSServiceType,
		"port": port,
	}).Info("mDNS service registered")
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" && r.URL.Query().Get("secret") != s.config.APISecret {
		s.log.WithField("remote", r.RemoteAddr).Warn("websocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	log := s.log.WithField("remote", r.RemoteAddr)
	log.Info("websocket connected")

	s.clientsMux.Lock()
	s.clients[c] = true
	s.clientsMux.Unlock()

	defer func() {
		s.clientsMux.Lock()
		delete(s.clients, c)
		s.clientsMux.Unlock()
		conn.Close()
		log.Info("websocket disconnected")
	}()

	if s.config.Reader != nil {
		if last := s.config.Reader.Status().LastTag; last != nil {
			c.send(&WebsocketMessage{Type: WSMessageTypeTagData, Payload: last})
		}
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.send(s.dispatch(r.Context(), message)); err != nil {
			log.WithError(err).Warn("failed to send response")
			return
		}
	}
}

// dispatch routes one raw request to its handler and builds the response.
func (s *Server) dispatch(ctx context.Context, message []byte) WebsocketResponse {
	var req WebsocketRequest
	if err := json.Unmarshal(message, &req); err != nil {
		s.log.WithError(err).Debug("failed to parse websocket message")
		return errorResponse("", ErrCodeParse, "Invalid message format")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	handler, ok := s.handlerRegistry.Get(req.Type)
	if !ok {
		s.log.WithField("type", req.Type).Debug("unknown message type")
		return errorResponse(req.ID, ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
	}

	resp := WebsocketResponse{
		ID:   req.ID,
		Type: req.Type + WSResponseSuffix,
	}
	payload, err := handler(ctx, req)
	if err != nil {
		resp.Error = err.Error()
		resp.Payload = map[string]interface{}{"code": ErrorCodeName(err)}
		return resp
	}
	resp.Success = true
	resp.Payload = payload
	return resp
}

func errorResponse(requestID, code, message string) WebsocketResponse {
	return WebsocketResponse{
		ID:      requestID,
		Type:    WSMessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]interface{}{
			"code": code,
		},
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus reports the reader state (GET /api/v1/status)
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"version":      buildinfo.FullVersion(),
		"clients":      s.ClientCount(),
		"messageTypes": s.handlerRegistry.MessageTypes(),
		"uptime":       time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.config.Reader != nil {
		status["reader"] = s.config.Reader.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
