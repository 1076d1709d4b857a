package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"maestro/config"
	"maestro/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// RequestHandler processes an incoming request and returns a response envelope.
type RequestHandler func(conn *Conn, env *Envelope) (*Envelope, error)

// Server exposes the coordinator over WebSocket: clients submit queries,
// watch run events stream back, and inspect history.
type Server struct {
	cfg      *config.Config
	stores   *store.Bundle
	version  string
	upgrader websocket.Upgrader
	handlers map[MessageType]RequestHandler

	mu    sync.Mutex
	conns map[*Conn]struct{}

	httpServer *http.Server
}

// NewServer creates a gateway server.
func NewServer(cfg *config.Config, stores *store.Bundle, version string) *Server {
	s := &Server{
		cfg:     cfg,
		stores:  stores,
		version: version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway binds locally; origin policy is the deployment's job
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		handlers: make(map[MessageType]RequestHandler),
		conns:    make(map[*Conn]struct{}),
	}
	s.registerHandlers()
	return s
}

// Serve listens on addr and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, s.version)
	})

	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Close shuts down the server and all connections.
func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.close()
	}
	s.mu.Unlock()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsbridge: upgrade: %v", err)
		return
	}

	conn := &Conn{
		server: s,
		ws:     ws,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	go conn.writePump()
	conn.readPump()

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Conn is one client connection. Run events for runs started on this
// connection are streamed back over it.
type Conn struct {
	server *Server
	ws     *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("wsbridge: read: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("wsbridge: invalid message: %v", err)
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) dispatch(env *Envelope) {
	handler, ok := c.server.handlers[env.Type]
	if !ok {
		log.Printf("wsbridge: unhandled message type: %s", env.Type)
		errResp, _ := NewError(env.RequestID, "unknown_type", fmt.Sprintf("unknown message type %q", env.Type))
		c.sendEnvelope(errResp)
		return
	}

	resp, err := handler(c, env)
	if err != nil {
		errResp, _ := NewError(env.RequestID, "handler_error", err.Error())
		c.sendEnvelope(errResp)
		return
	}
	if resp != nil {
		c.sendEnvelope(resp)
	}
}

func (c *Conn) sendEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed")
	}
}

// SendEvent sends a one-way event to the client.
func (c *Conn) SendEvent(env *Envelope) error {
	return c.sendEnvelope(env)
}
