package chat

import "sync"

// OutsideNotification is the identity of the catch-all external subscriber.
const OutsideNotification = "outsideNotification"

// Completion receives notifications for inbound C2C messages.
type Completion func(n Notification)

// NotifiableMessages is one subscriber to inbound-message notifications.
// Two instances with the same identifier are the same subscriber.
type NotifiableMessages struct {
	identifier string
	dispatcher Dispatcher

	mu         sync.Mutex
	completion Completion
}

func NewNotifiableMessages(identifier string, d Dispatcher, completion Completion) *NotifiableMessages {
	return &NotifiableMessages{identifier: identifier, dispatcher: d, completion: completion}
}

func (n *NotifiableMessages) Identifier() string {
	return n.identifier
}

func (n *NotifiableMessages) callback() Completion {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.completion
}

// Send delivers a notification on the dispatcher. The callback is looked
// up at delivery time, so a Free that runs before delivery suppresses it.
func (n *NotifiableMessages) Send(receiverID string, content *string, unreadCount int) {
	note := Notification{ReceiverID: receiverID, Content: content, UnreadCount: unreadCount}
	n.dispatcher.Async(func() {
		if c := n.callback(); c != nil {
			c(note)
		}
	})
}

// EmptySignal sends a blank notification.
func (n *NotifiableMessages) EmptySignal() {
	n.Send("", nil, 0)
}

// Free revokes the callback. Later sends are no-ops.
func (n *NotifiableMessages) Free() {
	n.mu.Lock()
	n.completion = nil
	n.mu.Unlock()
}

// Revoked reports whether Free has been called or no callback was given.
func (n *NotifiableMessages) Revoked() bool {
	return n.callback() == nil
}
