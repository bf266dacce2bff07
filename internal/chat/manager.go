package chat

import (
	"sort"
	"sync"

	"github.com/pelusa-v/zebra-chat/internal/logging"
	"github.com/pelusa-v/zebra-chat/internal/metrics"
)

// CountCompletion receives unread counts.
type CountCompletion func(count int)

type Options struct {
	// AutoMarkRead marks messages read when they arrive for the
	// conversation the user is chatting in.
	AutoMarkRead bool
	// AbortBatchOnRead stops routing the rest of an inbound batch after
	// an auto-read message or a message without a conversation. Off, the
	// remaining messages are routed normally.
	AbortBatchOnRead bool
}

func DefaultOptions() Options {
	return Options{AutoMarkRead: true}
}

// CentralManager tracks known conversations, the conversation being
// chatted in, and notification subscribers, and routes inbound SDK
// messages between them. Deferred callbacks run on the dispatcher, and
// no callback is ever invoked while the manager's lock is held.
type CentralManager struct {
	mu sync.Mutex

	conversations map[ConversationKey]Conversation
	subscribers   map[string]*NotifiableMessages
	unreadCount   CountCompletion
	chatting      Conversation
	opts          Options

	source   MessageSource
	factory  ConversationFactory
	queue    Dispatcher
	listener *queuedListener
}

func NewCentralManager(source MessageSource, factory ConversationFactory, queue Dispatcher, opts Options) *CentralManager {
	m := &CentralManager{
		conversations: map[ConversationKey]Conversation{},
		subscribers:   map[string]*NotifiableMessages{},
		opts:          opts,
		source:        source,
		factory:       factory,
		queue:         queue,
	}
	m.listener = &queuedListener{m: m}
	return m
}

func (m *CentralManager) SetAutoMarkRead(on bool) {
	m.mu.Lock()
	m.opts.AutoMarkRead = on
	m.mu.Unlock()
}

// Attach registers the manager on its message source. Batches delivered
// by the source are routed on the dispatcher.
func (m *CentralManager) Attach() {
	m.source.AddListener(m.listener)
}

func (m *CentralManager) Detach() {
	m.source.RemoveListener(m.listener)
}

type queuedListener struct {
	m *CentralManager
}

func (l *queuedListener) OnNewMessage(msgs []RawMessage) {
	batch := append([]RawMessage(nil), msgs...)
	if !l.m.queue.Async(func() { l.m.OnNewMessage(batch) }) {
		logging.Get().Warn().Int("count", len(batch)).Msg("dispatcher stopped, inbound batch dropped")
	}
}

// Conversation returns the known conversation for (t, id), creating and
// remembering it if needed. It returns nil when the SDK refuses the
// identity.
func (m *CentralManager) Conversation(t ConversationType, id string) Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationLocked(t, id)
}

func (m *CentralManager) conversationLocked(t ConversationType, id string) Conversation {
	key := ConversationKey{Type: t, ID: id}
	if c, ok := m.conversations[key]; ok {
		return c
	}
	c, err := m.factory.Open(t, id)
	if err != nil {
		logging.Get().Debug().Err(err).Str("type", t.String()).Str("id", id).Msg("conversation unavailable")
		return nil
	}
	// the SDK may canonicalize the id
	if known, ok := m.conversations[c.Key()]; ok {
		return known
	}
	m.conversations[c.Key()] = c
	metrics.SetConversations(len(m.conversations))
	return c
}

// HoldChat makes (t, id) the conversation the user is chatting in and
// reports an unread count of zero to the unread-count listener.
func (m *CentralManager) HoldChat(t ConversationType, id string) Conversation {
	m.mu.Lock()
	c := m.conversationLocked(t, id)
	m.chatting = c
	listener := m.unreadCount
	m.mu.Unlock()

	if c != nil && listener != nil {
		m.queue.Async(func() { listener(0) })
	}
	return c
}

// WaiveChat releases the chatting conversation. It is a no-op when there
// is none.
func (m *CentralManager) WaiveChat() {
	m.mu.Lock()
	c := m.chatting
	m.chatting = nil
	m.mu.Unlock()

	if c != nil {
		c.Free()
	}
}

// Chatting returns the conversation the user is chatting in, or nil.
func (m *CentralManager) Chatting() Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatting
}

// DeleteConversation deletes the first conversation, in key order, for
// which rule returns true. The entry is forgotten only if the SDK delete
// succeeds.
func (m *CentralManager) DeleteConversation(rule func(Conversation) bool) error {
	m.mu.Lock()
	convs := m.sortedConversationsLocked()
	m.mu.Unlock()

	var target Conversation
	for _, c := range convs {
		if rule(c) {
			target = c
			break
		}
	}
	if target == nil {
		return nil
	}

	if err := target.Delete(); err != nil {
		return err
	}

	key := target.Key()
	m.mu.Lock()
	delete(m.conversations, key)
	if m.chatting != nil && m.chatting.Key() == key {
		m.chatting = nil
	}
	metrics.SetConversations(len(m.conversations))
	m.mu.Unlock()
	return nil
}

func (m *CentralManager) sortedConversationsLocked() []Conversation {
	keys := make([]ConversationKey, 0, len(m.conversations))
	for k := range m.conversations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	convs := make([]Conversation, 0, len(keys))
	for _, k := range keys {
		convs = append(convs, m.conversations[k])
	}
	return convs
}

// ListenMessages registers the external catch-all subscriber. If one is
// already registered, the first completion stays in place.
func (m *CentralManager) ListenMessages(completion Completion) {
	m.Subscribe(OutsideNotification, completion)
}

// Subscribe registers a subscriber under id. It reports false for an
// empty id or an id that is already registered.
func (m *CentralManager) Subscribe(id string, completion Completion) bool {
	return m.Register(id, completion) != nil
}

// Register is Subscribe returning the registered subscriber, or nil when
// id is empty or taken. Pass the result to Unsubscribe to drop exactly
// this registration.
func (m *CentralManager) Register(id string, completion Completion) *NotifiableMessages {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[id]; ok {
		return nil
	}
	n := NewNotifiableMessages(id, m.queue, completion)
	m.subscribers[id] = n
	metrics.SetSubscribers(len(m.subscribers))
	return n
}

// Unsubscribe revokes n and forgets it if it is still the subscriber
// registered under its identifier. A newer registration under the same
// identifier is left alone.
func (m *CentralManager) Unsubscribe(n *NotifiableMessages) {
	if n == nil {
		return
	}
	n.Free()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribers[n.Identifier()] == n {
		delete(m.subscribers, n.Identifier())
		metrics.SetSubscribers(len(m.subscribers))
	}
}

// RemoveListener revokes the subscriber registered under id. An empty id
// revokes every subscriber except the external catch-all one.
func (m *CentralManager) RemoveListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		for key, s := range m.subscribers {
			if key == OutsideNotification {
				continue
			}
			s.Free()
			delete(m.subscribers, key)
		}
	} else if s, ok := m.subscribers[id]; ok {
		s.Free()
		delete(m.subscribers, id)
	}
	metrics.SetSubscribers(len(m.subscribers))
}

// Subscribers returns the registered identifiers in sorted order.
func (m *CentralManager) Subscribers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListenUnreadCount calls completion right away with the unread count of
// (t, id), or 0 if the conversation is unavailable, and then keeps it as
// the single unread-count listener, replacing any previous one.
func (m *CentralManager) ListenUnreadCount(t ConversationType, id string, completion CountCompletion) {
	m.mu.Lock()
	c := m.conversationLocked(t, id)
	m.unreadCount = completion
	m.mu.Unlock()

	count := 0
	if c != nil {
		count = c.UnreadCount()
	}
	if completion != nil {
		completion(count)
	}
}

// OnNewMessage routes one inbound batch. It must run on the dispatcher;
// Attach arranges that for batches coming from the message source.
func (m *CentralManager) OnNewMessage(msgs []RawMessage) {
	metrics.AddInbound(len(msgs))
	for i, raw := range msgs {
		if !m.route(raw) {
			if rest := len(msgs) - i - 1; rest > 0 {
				logging.Get().Debug().Int("skipped", rest).Msg("inbound batch aborted")
				metrics.AddDropped(metrics.DropBatchAborted, rest)
			}
			return
		}
	}
}

// route handles a single message and reports whether the batch should go on.
func (m *CentralManager) route(raw RawMessage) bool {
	handle, ok := raw.Conversation()
	if !ok || handle == nil {
		metrics.IncDropped(metrics.DropNoConversation)
		logging.Get().Debug().Msg("inbound message without conversation")
		return !m.abortBatch()
	}
	wrapped, err := m.factory.Wrap(handle)
	if err != nil {
		metrics.IncDropped(metrics.DropWrapFailed)
		logging.Get().Warn().Err(err).Str("conversation", handle.Key().String()).Msg("cannot wrap inbound conversation")
		return !m.abortBatch()
	}
	key := wrapped.Key()

	m.mu.Lock()
	existing, found := m.conversations[key]
	if !found {
		m.conversations[key] = wrapped
		metrics.SetConversations(len(m.conversations))
	}
	active := found && m.chatting != nil && m.chatting.Key() == key
	opts := m.opts
	m.mu.Unlock()

	if !found {
		m.notify(wrapped)
		return true
	}

	existing.Receive(raw)
	if active && opts.AutoMarkRead {
		existing.AlreadyRead(raw)
		metrics.IncAutoRead()
		return !opts.AbortBatchOnRead
	}
	if !raw.IsSelf() {
		m.notify(existing)
	}
	return true
}

func (m *CentralManager) abortBatch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.AbortBatchOnRead
}

// notify fans a C2C conversation's state out to every subscriber and to
// the unread-count listener. Other conversation types are ignored.
func (m *CentralManager) notify(c Conversation) {
	key := c.Key()
	if key.Type != ConversationC2C {
		return
	}
	text, hasText := c.LastMessage()
	unread := c.UnreadCount()

	m.mu.Lock()
	subs := make([]*NotifiableMessages, 0, len(m.subscribers))
	for _, s := range m.subscribers {
		subs = append(subs, s)
	}
	listener := m.unreadCount
	m.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].Identifier() < subs[j].Identifier() })
	for _, s := range subs {
		// each subscriber owns its content
		var content *string
		if hasText {
			body := text
			content = &body
		}
		s.Send(key.ID, content, unread)
	}
	metrics.AddNotifications(len(subs))
	if listener != nil {
		m.queue.Async(func() { listener(unread) })
	}
}
