// Package dashboard serves the spot snapshot over HTTP.
//
// It exposes a JSON REST API backed by the sync engine, pushes every
// published snapshot to WebSocket clients, and serves Prometheus metrics.
package dashboard

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teesmad/findmyspot/internal/registry"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSnapshot carries a full published snapshot
	MessageTypeSnapshot MessageType = "snapshot"

	// MessageTypeState carries engine status, sent on connect
	MessageTypeState MessageType = "state"
)

// Message is one WebSocket frame.
type Message struct {
	Type      MessageType `json:"type"`
	Version   uint64      `json:"version,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// Server manages the HTTP API and WebSocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	router   *gin.Engine

	syncer   spotsync.Syncer
	identity string
	gatherer prometheus.Gatherer

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast   chan Message
	unsubscribe func()

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (0 picks a free port)
	Port int

	// Syncer backs the API. Required.
	Syncer spotsync.Syncer

	// Metrics registry served on /metrics. HTTP collectors are registered
	// on it. Created if nil.
	Metrics *prometheus.Registry

	// Identity is echoed in the X-Principal response header (optional)
	Identity string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// NewServer creates a dashboard server. Routes are ready immediately;
// Start begins listening.
func NewServer(config *Config) *Server {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	if config.Metrics == nil {
		config.Metrics = prometheus.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		syncer:    config.Syncer,
		identity:  config.Identity,
		gatherer:  config.Metrics,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
	s.router = s.routes(newHTTPMetrics(config.Metrics))
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port, subscribes to the registry and
// begins broadcasting snapshots.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.unsubscribe = s.syncer.Registry().Subscribe(func(snap registry.Snapshot) {
		s.Broadcast(snapshotMessage(snap))
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast queues a message for every connected client.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := encodeMessage(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.send(conn, data); err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func encodeMessage(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

func snapshotMessage(snap registry.Snapshot) Message {
	return Message{
		Type:      MessageTypeSnapshot,
		Version:   snap.Version,
		Timestamp: time.Now(),
		Data:      snap.Spots,
	}
}

// handleWebSocket upgrades the connection, sends the engine state and the
// current snapshot, then keeps the client registered until it disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	for _, msg := range []Message{
		{Type: MessageTypeState, Data: s.syncer.Stats()},
		snapshotMessage(s.syncer.Registry().Snapshot()),
	} {
		data, err := encodeMessage(msg)
		if err != nil {
			s.logger.Printf("Failed to marshal message: %v", err)
			continue
		}
		if err := s.send(conn, data); err != nil {
			s.removeClient(conn)
			return
		}
	}

	s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
