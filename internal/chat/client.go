package chat

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/pelusa-v/zebra-chat/internal/logging"
)

// Client is a websocket peer subscribed to notifications under Id.
type Client struct {
	Id   string
	Conn ConnLike
	Send chan []byte
	// Sub is the registration made for this client, if any.
	Sub *NotifiableMessages

	mu     sync.Mutex
	closed bool
}

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

func NewClient(id string, conn ConnLike) *Client {
	return &Client{Id: id, Conn: conn, Send: make(chan []byte, 16)}
}

// Deliver queues n for the write pump. Notifications for a slow client
// are dropped rather than blocking the main queue.
func (c *Client) Deliver(n Notification) {
	data, err := json.Marshal(&n)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		logging.Get().Debug().Str("subscriber", c.Id).Msg("client send buffer full, notification dropped")
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump blocks until the peer goes away, then drops the client's own
// registration.
// Incoming frames are ignored.
func (c *Client) ReadPump(m *CentralManager) {
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			m.Unsubscribe(c.Sub)
			c.Close()
			return
		}
	}
}

func (c *Client) WritePump() {
	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Get().Debug().Err(err).Str("subscriber", c.Id).Msg("websocket write failed")
		}
	}
}
