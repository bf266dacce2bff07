package chat

import (
	"fmt"
	"strings"
)

type ConversationType int

const (
	ConversationC2C ConversationType = iota + 1
	ConversationGroup
	ConversationSystem
)

func (t ConversationType) String() string {
	switch t {
	case ConversationC2C:
		return "c2c"
	case ConversationGroup:
		return "group"
	case ConversationSystem:
		return "system"
	}
	return fmt.Sprintf("ConversationType(%d)", int(t))
}

// Valid reports whether t is one of the known conversation types.
func (t ConversationType) Valid() bool {
	return t >= ConversationC2C && t <= ConversationSystem
}

// ParseConversationType accepts "c2c", "group" or "system" (case-insensitive).
func ParseConversationType(s string) (ConversationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c2c":
		return ConversationC2C, nil
	case "group":
		return ConversationGroup, nil
	case "system":
		return ConversationSystem, nil
	}
	return 0, fmt.Errorf("unknown conversation type %q", s)
}

func (t ConversationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ConversationType) UnmarshalText(b []byte) error {
	v, err := ParseConversationType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ConversationKey is the identity of a conversation: two conversations
// with equal keys are the same thread.
type ConversationKey struct {
	Type ConversationType
	ID   string
}

func (k ConversationKey) String() string {
	return k.Type.String() + ":" + k.ID
}

// Notification is what subscribers receive for an inbound C2C message.
type Notification struct {
	ReceiverID  string  `json:"receiver_id"`
	Content     *string `json:"content,omitempty"` // last message text, if any
	UnreadCount int     `json:"unread_count"`
}

// ThreadPreview is one inbox row.
type ThreadPreview struct {
	Type     ConversationType `json:"type"`
	ID       string           `json:"id"`
	LastBody string           `json:"last_body"`
	Unread   int              `json:"unread"`
	Chatting bool             `json:"chatting"`
}
