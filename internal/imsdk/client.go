// Package imsdk is an in-memory IM SDK. It keeps conversations and their
// messages in process and delivers inbound batches to registered
// listeners, standing in for the vendor SDK behind chat.CentralManager.
package imsdk

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pelusa-v/zebra-chat/internal/chat"
)

var (
	ErrInvalidType = errors.New("imsdk: invalid conversation type")
	ErrInvalidID   = errors.New("imsdk: invalid conversation id")
	ErrNotFound    = errors.New("imsdk: conversation not found")
)

type thread struct {
	messages []*Message
	unread   int
}

// Client owns all conversation state. Conversation values returned by
// Open and Wrap are views over it, so two views of the same key always
// agree.
type Client struct {
	mu        sync.Mutex
	userID    string
	threads   map[chat.ConversationKey]*thread
	listeners []chat.MessageListener
}

func NewClient(userID string) *Client {
	return &Client{userID: userID, threads: map[chat.ConversationKey]*thread{}}
}

func (c *Client) UserID() string {
	return c.userID
}

// normalizeID trims surrounding whitespace; an empty result is invalid.
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

func validate(t chat.ConversationType, id string) (chat.ConversationKey, error) {
	if !t.Valid() {
		return chat.ConversationKey{}, fmt.Errorf("%w: %d", ErrInvalidType, int(t))
	}
	n := normalizeID(id)
	if n == "" {
		return chat.ConversationKey{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return chat.ConversationKey{Type: t, ID: n}, nil
}

// CanonicalKey returns the key Open would use for (t, id).
func (c *Client) CanonicalKey(t chat.ConversationType, id string) (chat.ConversationKey, error) {
	return validate(t, id)
}

func (c *Client) AddListener(l chat.MessageListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, have := range c.listeners {
		if have == l {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

func (c *Client) RemoveListener(l chat.MessageListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, have := range c.listeners {
		if have == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Open returns a view of conversation (t, id), creating its state on
// first use.
func (c *Client) Open(t chat.ConversationType, id string) (chat.Conversation, error) {
	key, err := validate(t, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.threadLocked(key)
	c.mu.Unlock()
	return &Conversation{client: c, key: key}, nil
}

// Wrap returns a view of the conversation a handle refers to.
func (c *Client) Wrap(h chat.ConversationHandle) (chat.Conversation, error) {
	if h == nil {
		return nil, ErrNotFound
	}
	k := h.Key()
	return c.Open(k.Type, k.ID)
}

func (c *Client) threadLocked(key chat.ConversationKey) *thread {
	th, ok := c.threads[key]
	if !ok {
		th = &thread{}
		c.threads[key] = th
	}
	return th
}

// NewMessage builds a message for (t, id). self marks it as sent by the
// local user.
func (c *Client) NewMessage(t chat.ConversationType, id, text string, self bool) *Message {
	sender := id
	if self {
		sender = c.userID
	}
	return &Message{
		ID:     uuid.NewString(),
		Key:    chat.ConversationKey{Type: t, ID: normalizeID(id)},
		Sender: sender,
		Text:   text,
		Self:   self,
		Time:   time.Now(),
	}
}

// Deliver stores msgs and hands them to every listener as one batch.
// Messages without a valid conversation are still delivered; listeners
// see them as having no conversation.
func (c *Client) Deliver(msgs ...*Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	for _, m := range msgs {
		if _, err := validate(m.Key.Type, m.Key.ID); err != nil {
			continue
		}
		th := c.threadLocked(m.Key)
		th.messages = append(th.messages, m)
		if !m.Self {
			th.unread++
		}
	}
	listeners := append([]chat.MessageListener(nil), c.listeners...)
	c.mu.Unlock()

	batch := make([]chat.RawMessage, len(msgs))
	for i, m := range msgs {
		batch[i] = m
	}
	for _, l := range listeners {
		l.OnNewMessage(batch)
	}
}

// Send records an outgoing message from the local user and echoes it to
// listeners.
func (c *Client) Send(t chat.ConversationType, id, text string) (*Message, error) {
	if _, err := validate(t, id); err != nil {
		return nil, err
	}
	m := c.NewMessage(t, id, text, true)
	c.Deliver(m)
	return m, nil
}
