package chat

// Inbox lists the known conversations ordered by type, then id.
func (m *CentralManager) Inbox() []*ThreadPreview {
	m.mu.Lock()
	convs := m.sortedConversationsLocked()
	var chatting ConversationKey
	if m.chatting != nil {
		chatting = m.chatting.Key()
	}
	m.mu.Unlock()

	list := make([]*ThreadPreview, 0, len(convs))
	for _, c := range convs {
		key := c.Key()
		last, _ := c.LastMessage()
		list = append(list, &ThreadPreview{
			Type: key.Type, ID: key.ID,
			LastBody: last, Unread: c.UnreadCount(),
			Chatting: key == chatting,
		})
	}
	return list
}

// MarkRead marks a known conversation read and reports the new count to
// the unread-count listener. It reports false for unknown conversations.
func (m *CentralManager) MarkRead(t ConversationType, id string) bool {
	key := ConversationKey{Type: t, ID: id}
	if kc, ok := m.factory.(KeyCanonicalizer); ok {
		canon, err := kc.CanonicalKey(t, id)
		if err != nil {
			return false
		}
		key = canon
	}
	m.mu.Lock()
	c, ok := m.conversations[key]
	listener := m.unreadCount
	m.mu.Unlock()
	if !ok {
		return false
	}
	c.AlreadyRead(nil)
	if listener != nil {
		count := c.UnreadCount()
		m.queue.Async(func() { listener(count) })
	}
	return true
}
