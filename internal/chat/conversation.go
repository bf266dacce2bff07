package chat

// Conversation is one chat thread as exposed by the IM SDK.
type Conversation interface {
	Key() ConversationKey
	UnreadCount() int
	// LastMessage returns the text of the newest message, if there is one.
	LastMessage() (string, bool)
	// Receive runs the receive hook configured on the conversation, if any.
	Receive(msg RawMessage)
	// AlreadyRead marks msg and everything before it as read.
	AlreadyRead(msg RawMessage)
	Delete() error
	// Free releases resources held for an open chat view.
	Free()
}

// ConversationHandle is the SDK's own reference to a conversation,
// carried by inbound messages.
type ConversationHandle interface {
	Key() ConversationKey
}

// ConversationFactory builds Conversations. Both constructors fail for
// identities the SDK does not accept.
type ConversationFactory interface {
	Open(t ConversationType, id string) (Conversation, error)
	Wrap(h ConversationHandle) (Conversation, error)
}

// KeyCanonicalizer is implemented by factories that rewrite ids, so that
// lookups of known conversations agree with Open.
type KeyCanonicalizer interface {
	CanonicalKey(t ConversationType, id string) (ConversationKey, error)
}

// RawMessage is an opaque inbound message delivered by the SDK.
type RawMessage interface {
	// Conversation returns the handle of the thread the message belongs to.
	Conversation() (ConversationHandle, bool)
	// IsSelf reports whether the local user sent the message.
	IsSelf() bool
}

// MessageListener receives inbound message batches.
type MessageListener interface {
	OnNewMessage(msgs []RawMessage)
}

// MessageSource is where inbound batches come from.
type MessageSource interface {
	AddListener(l MessageListener)
	RemoveListener(l MessageListener)
}
