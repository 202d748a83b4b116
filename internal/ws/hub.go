package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

// Relay is the part of the relay core a socket drives.
type Relay interface {
	Join(ctx context.Context, sub relay.Subscriber, req relay.JoinRequest) (*relay.Session, error)
	Publish(evt relay.Event, tenant string) relay.Report
}

// Options configures a Hub.
type Options struct {
	// BufferSize is the per-client outbound queue length.
	BufferSize int
	// PingPeriod is the keepalive interval; the read deadline is derived from it.
	PingPeriod time.Duration
}

// Hub tracks live socket clients and hands inbound messages to the relay.
type Hub struct {
	relay      Relay
	encoder    *Encoder
	opts       Options
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(r Relay, opts Options, logger *zap.Logger) (*Hub, error) {
	if opts.BufferSize < 2 {
		opts.BufferSize = sendBufferSize
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = pingPeriod
	}
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}
	return &Hub{
		relay:      r,
		encoder:    enc,
		opts:       opts,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		logger:     logger,
	}, nil
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("connID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.id))
		}
	}
}

// Count returns the number of live socket clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	close(h.stopped)
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

// HandleWS upgrades the request and starts the client's pumps. The
// client joins by sending a named join message.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	protocol := protocolJSON
	var responseHeader http.Header
	for _, proto := range websocket.Subprotocols(r) {
		switch proto {
		case subprotocolProtobuf:
			protocol = protocolProtobuf
			responseHeader = http.Header{"Sec-WebSocket-Protocol": {proto}}
		case subprotocolJSON:
			protocol = protocolJSON
			responseHeader = http.Header{"Sec-WebSocket-Protocol": {proto}}
		}
		if responseHeader != nil {
			break
		}
	}

	h.logger.Debug("websocket subprotocol negotiated",
		zap.String("protocol", protocol),
		zap.Strings("requested", websocket.Subprotocols(r)),
	)

	conn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      h,
		conn:     conn,
		id:       uuid.NewString(),
		send:     make(chan []byte, h.opts.BufferSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   h.logger,
		protocol: protocol,
	}

	select {
	case h.register <- client:
	case <-h.stopped:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
