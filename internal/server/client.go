package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client pumps events between a websocket and the Gateway. It implements
// Conn.
type Client struct {
	id       string
	conn     *websocket.Conn
	gateway  *Gateway
	log      zerolog.Logger
	identity Identity
	send     chan *Event
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, identity Identity, gw *Gateway, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		conn:     conn,
		gateway:  gw,
		log:      log.With().Str("conn_id", id).Str("user_id", identity.UserId).Logger(),
		identity: identity,
		send:     make(chan *Event, sendBufferSize),
		stop:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues ev for the write pump. It never blocks; a full buffer or a
// stopped client rejects the event.
func (c *Client) Send(ev *Event) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Serve registers the client and runs both pumps. It returns once the
// connection is closed and cleanup is done. A gateway that is shutting
// down refuses the connection.
func (c *Client) Serve(ctx context.Context) {
	if !c.gateway.track() {
		c.conn.Close()
		return
	}
	defer c.gateway.untrack()

	c.gateway.Connect(ctx, c, c.identity)
	if c.gateway.shuttingDown() {
		// registered after CloseAll took its snapshot
		c.Close()
	}
	go c.Write()
	c.Read(ctx)
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case ev := <-c.send:
			bytes, err := serializeEvent(ev)
			if err != nil {
				c.log.Error().Err(err).Str("event", ev.Name).Msg("failed to serialize event")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read(ctx context.Context) {
	defer func() {
		c.conn.Close()
		c.gateway.Disconnect(context.WithoutCancel(ctx), c.id)
		c.Close()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws read")
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.Name == "" {
			c.log.Debug().Err(err).Msg("error parsing message")
			c.Send(ErrInvalidMessage())
			continue
		}

		c.gateway.HandleEvent(ctx, c.id, ev)
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}
