package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Default ping period when none is configured.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64KB

	// Default send buffer size per client.
	sendBufferSize = 256

	// Time allowed for a tenant lookup during join.
	resolveTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // overlays are embedded from arbitrary origins
	Subprotocols:    []string{subprotocolProtobuf, subprotocolJSON},
}

// Client is a duplex socket subscriber. It implements relay.Subscriber:
// Send encodes for the negotiated protocol and enqueues without blocking.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	protocol string // "protobuf" or "json"

	mu      sync.Mutex
	session *relay.Session
}

// ID implements relay.Subscriber.
func (c *Client) ID() string { return c.id }

// Send implements relay.Subscriber.
func (c *Client) Send(evt relay.Event) error {
	select {
	case <-c.done:
		return relay.ErrSubscriberClosed
	default:
	}

	payload, err := evt.Marshal()
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

// Close implements relay.Subscriber. The write pump flushes what is
// already queued and then closes the connection.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done implements relay.Subscriber.
func (c *Client) Done() <-chan struct{} { return c.done }

// enqueue encodes a JSON envelope for the wire and queues it.
func (c *Client) enqueue(payload []byte) error {
	msg := payload
	if c.protocol == protocolProtobuf {
		encoded, err := c.hub.encoder.Encode(payload)
		if err != nil {
			return err
		}
		msg = encoded
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return relay.ErrSlowSubscriber
	}
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.closeSession()
		c.Close()
		c.cancel()
		c.conn.Close()
	}()

	pongWait := (c.hub.opts.PingPeriod * 10) / 9

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.id),
					zap.Error(err),
				)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	// Determine message type based on protocol
	msgType := websocket.BinaryMessage
	if c.protocol == protocolJSON {
		msgType = websocket.TextMessage
	}

	for {
		select {
		case message := <-c.send:
			if err := c.write(msgType, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.id),
					zap.Error(err),
				)
				c.Close()
				return
			}

		case <-c.done:
			c.flush(msgType)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(msgType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

// flush writes whatever is still queued.
func (c *Client) flush(msgType int) {
	for {
		select {
		case message := <-c.send:
			if err := c.write(msgType, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// handleMessage processes an incoming upstream message.
func (c *Client) handleMessage(data []byte) {
	raw := data
	if c.protocol == protocolProtobuf {
		decoded, err := c.hub.encoder.Decode(data)
		if err != nil {
			c.reply(relay.NewError(reasonBadMessage, err.Error()))
			return
		}
		raw = decoded
	}

	msg, err := parseUpstreamMessageJSON(raw)
	if err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.id),
			zap.String("protocol", c.protocol),
			zap.Error(err),
		)
		c.reply(relay.NewError(reasonBadMessage, err.Error()))
		return
	}

	switch m := msg.(type) {
	case *joinRequest:
		c.handleJoin(m.req)

	case *eventRequest:
		c.handleEvent(m)

	case *pingRequest:
		if err := c.enqueue(buildPongMessageJSON()); err != nil {
			c.logger.Debug("failed to queue pong", zap.String("connID", c.id), zap.Error(err))
		}
	}
}

func (c *Client) handleJoin(req relay.JoinRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.reply(relay.NewError(relay.ReasonAlreadyJoined, relay.ErrAlreadyJoined.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, resolveTimeout)
	defer cancel()

	session, err := c.hub.relay.Join(ctx, c, req)
	if err != nil {
		c.logger.Debug("join failed",
			zap.String("connID", c.id),
			zap.Error(err),
		)
		// A rejection message is already queued; the write pump flushes it
		// before closing.
		c.Close()
		return
	}
	c.session = session
}

func (c *Client) handleEvent(m *eventRequest) {
	evtType, err := relay.ParseEventType(m.eventType)
	if err != nil {
		c.reply(relay.NewError(reasonBadEvent, err.Error()))
		return
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil || session.State() != relay.StateStreaming {
		c.reply(relay.NewError(reasonNotJoined, "join before publishing events"))
		return
	}

	var data any
	if len(m.data) > 0 {
		data = json.RawMessage(m.data)
	}
	report := c.hub.relay.Publish(relay.Event{Type: evtType, Data: data}, session.Tenant())
	c.logger.Debug("event published from socket",
		zap.String("connID", c.id),
		zap.String("tenant", session.Tenant()),
		zap.String("type", string(evtType)),
		zap.Int("delivered", report.Delivered),
	)
}

// reply sends a control message to this client only.
func (c *Client) reply(evt relay.Event) {
	if err := c.Send(evt); err != nil {
		c.logger.Debug("failed to queue reply",
			zap.String("connID", c.id),
			zap.Error(err),
		)
	}
}

func (c *Client) closeSession() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		session.Close()
	}
}

// Compile-time interface verification
var _ relay.Subscriber = (*Client)(nil)
