package imsdk

import (
	"fmt"
	"sync"
	"time"

	"github.com/pelusa-v/zebra-chat/internal/chat"
)

type Message struct {
	ID     string
	Key    chat.ConversationKey
	Sender string
	Text   string
	Self   bool
	Time   time.Time
}

type handle chat.ConversationKey

func (h handle) Key() chat.ConversationKey { return chat.ConversationKey(h) }

func (m *Message) Conversation() (chat.ConversationHandle, bool) {
	if !m.Key.Type.Valid() || m.Key.ID == "" {
		return nil, false
	}
	return handle(m.Key), true
}

func (m *Message) IsSelf() bool { return m.Self }

// Conversation is a view over one thread held by a Client.
type Conversation struct {
	client *Client
	key    chat.ConversationKey

	mu        sync.Mutex
	onReceive func(chat.RawMessage)
}

func (v *Conversation) Key() chat.ConversationKey { return v.key }

func (v *Conversation) UnreadCount() int {
	v.client.mu.Lock()
	defer v.client.mu.Unlock()
	if th, ok := v.client.threads[v.key]; ok {
		return th.unread
	}
	return 0
}

func (v *Conversation) LastMessage() (string, bool) {
	v.client.mu.Lock()
	defer v.client.mu.Unlock()
	th, ok := v.client.threads[v.key]
	if !ok || len(th.messages) == 0 {
		return "", false
	}
	return th.messages[len(th.messages)-1].Text, true
}

// Messages returns a copy of the thread's history, oldest first.
func (v *Conversation) Messages() []*Message {
	v.client.mu.Lock()
	defer v.client.mu.Unlock()
	th, ok := v.client.threads[v.key]
	if !ok {
		return nil
	}
	return append([]*Message(nil), th.messages...)
}

// OnReceive sets the hook Receive runs; nil clears it.
func (v *Conversation) OnReceive(fn func(chat.RawMessage)) {
	v.mu.Lock()
	v.onReceive = fn
	v.mu.Unlock()
}

func (v *Conversation) Receive(msg chat.RawMessage) {
	v.mu.Lock()
	fn := v.onReceive
	v.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// AlreadyRead marks msg and every earlier message read. A nil or unknown
// msg marks the whole thread read.
func (v *Conversation) AlreadyRead(msg chat.RawMessage) {
	v.client.mu.Lock()
	defer v.client.mu.Unlock()
	th, ok := v.client.threads[v.key]
	if !ok {
		return
	}
	target, _ := msg.(*Message)
	unread := 0
	for i := len(th.messages) - 1; i >= 0; i-- {
		m := th.messages[i]
		if target != nil && m == target {
			th.unread = unread
			return
		}
		if !m.Self {
			unread++
		}
	}
	th.unread = 0
}

func (v *Conversation) Delete() error {
	v.client.mu.Lock()
	defer v.client.mu.Unlock()
	if _, ok := v.client.threads[v.key]; !ok {
		return fmt.Errorf("delete %s: %w", v.key, ErrNotFound)
	}
	delete(v.client.threads, v.key)
	return nil
}

// Free drops the receive hook.
func (v *Conversation) Free() {
	v.OnReceive(nil)
}
