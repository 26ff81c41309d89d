package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cbodonnell/relayhub/pkg/api/handlers"
	"github.com/cbodonnell/relayhub/pkg/clients"
	"github.com/cbodonnell/relayhub/pkg/game/types"
	"github.com/cbodonnell/relayhub/pkg/log"
	"github.com/cbodonnell/relayhub/pkg/messages"
	"github.com/cbodonnell/relayhub/pkg/queue"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

// WSServer accepts websocket clients and feeds their events to the game loop.
type WSServer struct {
	port             int
	eventQueue       queue.Queue
	stats            handlers.StatsProvider
	clientSendBuffer int
	maxMessageSize   int64
	writeTimeout     time.Duration
	messageRateLimit float64
	messageRateBurst int
	shutdownTimeout  time.Duration
	tls              *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewWSServerOptions struct {
	Port             int
	EventQueue       queue.Queue
	Stats            handlers.StatsProvider
	ClientSendBuffer int
	MaxMessageSize   int64
	WriteTimeout     time.Duration
	// MessageRateLimit is in messages per second. Zero disables it.
	MessageRateLimit float64
	MessageRateBurst int
	ShutdownTimeout  time.Duration
	// TLS is optional. Without it the server speaks plain ws.
	TLS *TLSConfig
}

// NewWSServer creates a new WebSocket server.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	return &WSServer{
		port:             opts.Port,
		eventQueue:       opts.EventQueue,
		stats:            opts.Stats,
		clientSendBuffer: opts.ClientSendBuffer,
		maxMessageSize:   opts.MaxMessageSize,
		writeTimeout:     opts.WriteTimeout,
		messageRateLimit: opts.MessageRateLimit,
		messageRateBurst: opts.MessageRateBurst,
		shutdownTimeout:  opts.ShutdownTimeout,
		tls:              opts.TLS,
	}
}

// Start serves until ctx is done, then shuts the listener down.
func (s *WSServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{Addr: addr, Handler: s.Router(ctx)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("WebSocket server shutdown error: %v", err)
		}
	}()

	var listenAndServe func() error
	if s.tls != nil {
		log.Info("WebSocket server listening on %s with TLS", addr)
		listenAndServe = func() error {
			return server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("WebSocket server listening on %s", addr)
		listenAndServe = server.ListenAndServe
	}

	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("WebSocket server closed")
			return nil
		}
		return fmt.Errorf("websocket server error: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for the server. Connections accepted by it
// are closed once ctx is done.
func (s *WSServer) Router(ctx context.Context) http.Handler {
	router := mux.NewRouter()
	router.Handle("/healthz", gzhttp.GzipHandler(handlers.HandleHealth())).Methods(http.MethodGet)
	router.Handle("/stats", gzhttp.GzipHandler(handlers.HandleStats(s.stats))).Methods(http.MethodGet)
	// clients may upgrade on any other path
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})
	return router
}

func (s *WSServer) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket connection from %s: %v", r.RemoteAddr, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "operational fault during relay")
	c.SetReadLimit(s.maxMessageSize)

	conn := newWSConnection(clients.NewClientID(), c, s.clientSendBuffer, s.writeTimeout)
	log.Debug("New WebSocket connection from %s assigned client %s", r.RemoteAddr, conn.ID())

	s.handleConnection(ctx, conn)
}

// handleConnection runs the connection until either side goes away. The
// connect event always precedes the client's messages in the queue and the
// disconnect event always follows them.
func (s *WSServer) handleConnection(ctx context.Context, conn *wsConnection) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.eventQueue.Enqueue(connCtx, &types.ConnectClientEvent{Conn: conn}); err != nil {
		log.Error("Failed to enqueue connect event for client %s: %v", conn.ID(), err)
		conn.closeWith(websocket.StatusTryAgainLater, "server unavailable")
		return
	}

	go func() {
		defer cancel()
		if err := conn.writePump(connCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug("Write to client %s failed: %v", conn.ID(), err)
		}
	}()

	err := s.readPump(connCtx, conn)
	conn.markClosed()
	logReadError(conn.ID(), err)

	if ctx.Err() != nil {
		// the game loop has stopped
		return
	}
	if err := s.eventQueue.Enqueue(ctx, &types.DisconnectClientEvent{ClientID: conn.ID()}); err != nil {
		log.Warn("Failed to enqueue disconnect event for client %s: %v", conn.ID(), err)
	}
}

// readPump decodes frames from the client until the connection fails.
// Frames that cannot be decoded or exceed the rate limit are dropped.
func (s *WSServer) readPump(ctx context.Context, conn *wsConnection) error {
	var limiter *rate.Limiter
	if s.messageRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.messageRateLimit), s.messageRateBurst)
	}

	for {
		_, data, err := conn.conn.Read(ctx)
		if err != nil {
			return err
		}

		if limiter != nil && !limiter.Allow() {
			log.Warn("Dropping message from client %s: rate limit exceeded", conn.ID())
			continue
		}

		msg, err := messages.DeserializeClientMessage(data)
		if err != nil {
			log.Warn("Dropping message from client %s: %v", conn.ID(), err)
			continue
		}
		log.Trace("Received %s message from client %s", msg.MessageType(), conn.ID())

		event := &types.ClientMessageEvent{ClientID: conn.ID(), Message: msg}
		if err := s.eventQueue.Enqueue(ctx, event); err != nil {
			return err
		}
	}
}

func logReadError(clientID string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Trace("Connection for client %s canceled", clientID)
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		log.Trace("Client %s closed the connection", clientID)
	default:
		log.Debug("Error reading from client %s: %v", clientID, err)
	}
}
