package chat_test

import (
	"sync"

	"github.com/pelusa-v/zebra-chat/internal/chat"
)

type fakeConversation struct {
	key       chat.ConversationKey
	unread    int
	frees     int
	deleteErr error
}

func (c *fakeConversation) Key() chat.ConversationKey   { return c.key }
func (c *fakeConversation) UnreadCount() int            { return c.unread }
func (c *fakeConversation) LastMessage() (string, bool) { return "", false }
func (c *fakeConversation) Receive(chat.RawMessage)     {}
func (c *fakeConversation) AlreadyRead(chat.RawMessage) { c.unread = 0 }
func (c *fakeConversation) Delete() error               { return c.deleteErr }
func (c *fakeConversation) Free()                       { c.frees++ }

// fakeFactory hands out one fakeConversation per key and ignores listeners.
type fakeFactory struct {
	mu    sync.Mutex
	convs map[chat.ConversationKey]*fakeConversation
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{convs: map[chat.ConversationKey]*fakeConversation{}}
}

func (f *fakeFactory) conv(t chat.ConversationType, id string) *fakeConversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := chat.ConversationKey{Type: t, ID: id}
	c, ok := f.convs[key]
	if !ok {
		c = &fakeConversation{key: key}
		f.convs[key] = c
	}
	return c
}

func (f *fakeFactory) Open(t chat.ConversationType, id string) (chat.Conversation, error) {
	return f.conv(t, id), nil
}

func (f *fakeFactory) Wrap(h chat.ConversationHandle) (chat.Conversation, error) {
	k := h.Key()
	return f.conv(k.Type, k.ID), nil
}

func (f *fakeFactory) AddListener(chat.MessageListener)    {}
func (f *fakeFactory) RemoveListener(chat.MessageListener) {}
