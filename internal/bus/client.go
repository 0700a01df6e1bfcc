package bus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// ConnData is the mutable per-connection state the engine hangs off a
// socket: which room it sits in, its role, and the player it speaks for.
type ConnData struct {
	RoomCode string
	Role     string
	PlayerID string
}

// Client is one websocket connection.
type Client struct {
	ID       string
	DeviceID string

	bus  *Bus
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once

	mu   sync.Mutex
	data ConnData
}

// NewClient wraps an upgraded connection. A missing device id gets a fresh
// one so rejoin flows always have something to hold on to.
func NewClient(b *Bus, conn *websocket.Conn, deviceID string) *Client {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return &Client{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		bus:      b,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

// ConnID returns the connection's bus identity.
func (c *Client) ConnID() string { return c.ID }

// Device returns the stable device identity presented at connect time.
func (c *Client) Device() string { return c.DeviceID }

// Data returns a snapshot of the connection state.
func (c *Client) Data() ConnData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// SetData mutates the connection state under the client lock.
func (c *Client) SetData(fn func(*ConnData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.data)
}

// SendEvent queues an event frame for this connection.
func (c *Client) SendEvent(event string, payload any) {
	frame, err := encodeFrame(event, 0, payload)
	if err != nil {
		c.bus.log.Error().Err(err).Str("event", event).Msg("drop unencodable frame")
		return
	}
	c.enqueue(frame)
}

// SendAck queues the ack frame for a request seq.
func (c *Client) SendAck(seq int64, payload any) {
	frame, err := encodeFrame(ackEvent, seq, payload)
	if err != nil {
		c.bus.log.Error().Err(err).Msg("drop unencodable ack")
		return
	}
	c.enqueue(frame)
}

// enqueue is best-effort: a subscriber that cannot drain its buffer loses
// the frame rather than stalling the room.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.bus.log.Warn().Str("conn", c.ID).Msg("send buffer full, dropping frame")
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump consumes inbound frames until the connection drops, handing each
// decoded envelope to handle. onClose runs exactly once afterwards, with the
// connection already deregistered from the bus.
func (c *Client) ReadPump(handle func(*Client, Envelope), onClose func(*Client)) {
	defer func() {
		c.bus.unregister(c)
		c.conn.Close()
		if onClose != nil {
			onClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.bus.log.Debug().Err(err).Str("conn", c.ID).Msg("websocket closed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.SendEvent("error", map[string]any{"error": "Invalid message"})
			continue
		}
		handle(c, env)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
