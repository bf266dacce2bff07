package chat_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pelusa-v/zebra-chat/internal/chat"
	"github.com/pelusa-v/zebra-chat/internal/imsdk"
)

type recorder struct {
	mu     sync.Mutex
	notes  []chat.Notification
	counts []int
}

func (r *recorder) note(n chat.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) count(c int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, c)
}

func (r *recorder) Notes() []chat.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Notification(nil), r.notes...)
}

func (r *recorder) Counts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.counts...)
}

func strPtr(s string) *string { return &s }

func newManager(t *testing.T, opts chat.Options) (*chat.CentralManager, *imsdk.Client, *chat.MainQueue) {
	t.Helper()
	q := chat.NewMainQueue()
	q.Start()
	t.Cleanup(q.Stop)
	sdk := imsdk.NewClient("me")
	m := chat.NewCentralManager(sdk, sdk, q, opts)
	m.Attach()
	t.Cleanup(m.Detach)
	return m, sdk, q
}

func TestConversationIdentityStable(t *testing.T) {
	m, _, _ := newManager(t, chat.DefaultOptions())

	a := m.Conversation(chat.ConversationC2C, "u1")
	if a == nil {
		t.Fatal("expected conversation")
	}
	if b := m.Conversation(chat.ConversationC2C, "u1"); b != a {
		t.Fatalf("expected same conversation, got %p and %p", a, b)
	}
	if c := m.Conversation(chat.ConversationC2C, " u1 "); c != a {
		t.Fatal("expected canonicalized id to resolve to the same conversation")
	}
	if g := m.Conversation(chat.ConversationGroup, "u1"); g == a {
		t.Fatal("group and c2c conversations with the same id must differ")
	}
	if got := len(m.Inbox()); got != 2 {
		t.Fatalf("expected 2 conversations, got %d", got)
	}
}

func TestConversationUnavailable(t *testing.T) {
	m, _, _ := newManager(t, chat.DefaultOptions())

	if c := m.Conversation(chat.ConversationC2C, "  "); c != nil {
		t.Fatalf("expected nil for blank id, got %v", c.Key())
	}
	if c := m.HoldChat(chat.ConversationType(42), "u1"); c != nil {
		t.Fatal("expected nil for unknown type")
	}
	if m.Chatting() != nil {
		t.Fatal("failed hold must not leave a chatting conversation")
	}

	var rec recorder
	m.ListenUnreadCount(chat.ConversationC2C, "", rec.count)
	if diff := cmp.Diff([]int{0}, rec.Counts()); diff != "" {
		t.Fatalf("unread counts mismatch (-want +got):\n%s", diff)
	}
	if got := len(m.Inbox()); got != 0 {
		t.Fatalf("expected empty inbox, got %d", got)
	}
}

func TestHoldChatReportsZeroUnread(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	sdk.Deliver(
		sdk.NewMessage(chat.ConversationC2C, "u1", "one", false),
		sdk.NewMessage(chat.ConversationC2C, "u1", "two", false),
	)
	q.Flush()

	var rec recorder
	m.ListenUnreadCount(chat.ConversationC2C, "u1", rec.count)
	if c := m.HoldChat(chat.ConversationC2C, "u1"); c == nil {
		t.Fatal("expected conversation")
	}
	q.Flush()

	if diff := cmp.Diff([]int{2, 0}, rec.Counts()); diff != "" {
		t.Fatalf("unread counts mismatch (-want +got):\n%s", diff)
	}
}

func TestWaiveChatIdempotent(t *testing.T) {
	m, _, _ := newManager(t, chat.DefaultOptions())

	m.WaiveChat() // nothing held yet

	c := m.HoldChat(chat.ConversationC2C, "u1")
	hooked := 0
	c.(*imsdk.Conversation).OnReceive(func(chat.RawMessage) { hooked++ })

	m.WaiveChat()
	m.WaiveChat()

	if m.Chatting() != nil {
		t.Fatal("expected no chatting conversation")
	}
	c.Receive(nil)
	if hooked != 0 {
		t.Fatal("expected receive hook to be released")
	}
}

func TestWaiveChatReleasesOnce(t *testing.T) {
	q := chat.NewMainQueue()
	f := newFakeFactory()
	m := chat.NewCentralManager(f, f, q, chat.DefaultOptions())

	m.HoldChat(chat.ConversationC2C, "u1")
	m.WaiveChat()
	m.WaiveChat()

	if got := f.conv(chat.ConversationC2C, "u1").frees; got != 1 {
		t.Fatalf("expected one release, got %d", got)
	}
}

func TestFanOutToAllSubscribers(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var a, b recorder
	m.ListenMessages(a.note)
	if !m.Subscribe("u123", b.note) {
		t.Fatal("expected subscribe to succeed")
	}

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u123", "hello", false))
	q.Flush()

	want := []chat.Notification{{ReceiverID: "u123", Content: strPtr("hello"), UnreadCount: 1}}
	if diff := cmp.Diff(want, a.Notes()); diff != "" {
		t.Errorf("subscriber A mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, b.Notes()); diff != "" {
		t.Errorf("subscriber B mismatch (-want +got):\n%s", diff)
	}
}

func TestUnreadListenerFollowsEvents(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var first, second recorder
	m.ListenUnreadCount(chat.ConversationC2C, "u1", first.count)
	m.ListenUnreadCount(chat.ConversationC2C, "u1", second.count)

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "hi", false))
	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "again", false))
	q.Flush()

	if diff := cmp.Diff([]int{0}, first.Counts()); diff != "" {
		t.Errorf("replaced listener got events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, second.Counts()); diff != "" {
		t.Errorf("active listener mismatch (-want +got):\n%s", diff)
	}
}

func TestActiveConversationAutoRead(t *testing.T) {
	tests := []struct {
		name      string
		abort     bool
		wantInbox []string
		wantNotes int
	}{
		{"abort batch", true, []string{"u123"}, 0},
		{"route whole batch", false, []string{"u123", "u456"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, sdk, q := newManager(t, chat.Options{AutoMarkRead: true, AbortBatchOnRead: tt.abort})
			var rec recorder
			m.ListenMessages(rec.note)
			active := m.HoldChat(chat.ConversationC2C, "u123")

			sdk.Deliver(
				sdk.NewMessage(chat.ConversationC2C, "u123", "seen", false),
				sdk.NewMessage(chat.ConversationC2C, "u456", "other", false),
			)
			q.Flush()

			if got := active.UnreadCount(); got != 0 {
				t.Fatalf("expected active conversation read, unread=%d", got)
			}
			var ids []string
			for _, p := range m.Inbox() {
				ids = append(ids, p.ID)
			}
			if diff := cmp.Diff(tt.wantInbox, ids); diff != "" {
				t.Fatalf("inbox mismatch (-want +got):\n%s", diff)
			}
			if got := len(rec.Notes()); got != tt.wantNotes {
				t.Fatalf("expected %d notifications, got %d", tt.wantNotes, got)
			}
			for _, n := range rec.Notes() {
				if n.ReceiverID == "u123" {
					t.Fatal("active conversation must not notify")
				}
			}
		})
	}
}

func TestAutoReadDisabledNotifies(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	m.SetAutoMarkRead(false)
	var rec recorder
	m.ListenMessages(rec.note)
	active := m.HoldChat(chat.ConversationC2C, "u1")

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "ping", false))
	q.Flush()

	if got := active.UnreadCount(); got != 1 {
		t.Fatalf("expected unread 1, got %d", got)
	}
	if got := len(rec.Notes()); got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}
}

func TestGroupConversationDoesNotNotify(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var rec recorder
	m.ListenMessages(rec.note)

	sdk.Deliver(sdk.NewMessage(chat.ConversationGroup, "g1", "hey all", false))
	sdk.Deliver(sdk.NewMessage(chat.ConversationSystem, "sys", "maintenance", false))
	q.Flush()

	want := []*chat.ThreadPreview{
		{Type: chat.ConversationGroup, ID: "g1", LastBody: "hey all", Unread: 1},
		{Type: chat.ConversationSystem, ID: "sys", LastBody: "maintenance", Unread: 1},
	}
	if diff := cmp.Diff(want, m.Inbox()); diff != "" {
		t.Fatalf("inbox mismatch (-want +got):\n%s", diff)
	}
	if got := len(rec.Notes()); got != 0 {
		t.Fatalf("expected no notifications, got %d", got)
	}
}

func TestSelfMessages(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var rec recorder
	m.ListenMessages(rec.note)

	// a new conversation always notifies, even for our own message
	if _, err := sdk.Send(chat.ConversationC2C, "u1", "first"); err != nil {
		t.Fatal(err)
	}
	q.Flush()
	// known conversation: own messages stay quiet
	if _, err := sdk.Send(chat.ConversationC2C, "u1", "second"); err != nil {
		t.Fatal(err)
	}
	q.Flush()

	want := []chat.Notification{{ReceiverID: "u1", Content: strPtr("first"), UnreadCount: 0}}
	if diff := cmp.Diff(want, rec.Notes()); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestReceiveHookOnKnownConversation(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	conv := m.Conversation(chat.ConversationC2C, "u1").(*imsdk.Conversation)
	var got []string
	conv.OnReceive(func(raw chat.RawMessage) {
		got = append(got, raw.(*imsdk.Message).Text)
	})

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "a", false))
	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "b", false))
	q.Flush()

	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Fatalf("hook mismatch (-want +got):\n%s", diff)
	}
}

func TestRevokedSubscriberGetsNothing(t *testing.T) {
	q := chat.NewMainQueue() // not started: deliveries stay queued
	sdk := imsdk.NewClient("me")
	m := chat.NewCentralManager(sdk, sdk, q, chat.DefaultOptions())
	var rec recorder
	m.Subscribe("u9", rec.note)

	msg := sdk.NewMessage(chat.ConversationC2C, "u9", "late", false)
	sdk.Deliver(msg)
	m.OnNewMessage([]chat.RawMessage{msg})
	m.RemoveListener("u9")

	q.Start()
	defer q.Stop()
	q.Flush()

	if got := len(rec.Notes()); got != 0 {
		t.Fatalf("revoked subscriber received %d notifications", got)
	}
}

func TestRemoveAllKeepsOutsideSubscriber(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var outside, a, b recorder
	m.ListenMessages(outside.note)
	m.Subscribe("a", a.note)
	m.Subscribe("b", b.note)

	m.RemoveListener("")
	if diff := cmp.Diff([]string{chat.OutsideNotification}, m.Subscribers()); diff != "" {
		t.Fatalf("subscribers mismatch (-want +got):\n%s", diff)
	}
	m.RemoveListener("missing")

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "still here", false))
	q.Flush()

	if len(outside.Notes()) != 1 || len(a.Notes()) != 0 || len(b.Notes()) != 0 {
		t.Fatalf("unexpected deliveries: outside=%d a=%d b=%d", len(outside.Notes()), len(a.Notes()), len(b.Notes()))
	}
}

func TestDuplicateSubscriberKeepsFirst(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var first, second recorder
	m.ListenMessages(first.note)
	m.ListenMessages(second.note)
	if !m.Subscribe("x", first.note) || m.Subscribe("x", second.note) {
		t.Fatal("expected second registration under the same id to be ignored")
	}
	if m.Subscribe("", first.note) {
		t.Fatal("empty id must be rejected")
	}

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "hi", false))
	q.Flush()

	if got := len(first.Notes()); got != 2 {
		t.Fatalf("expected first completion twice, got %d", got)
	}
	if got := len(second.Notes()); got != 0 {
		t.Fatalf("expected second completion unused, got %d", got)
	}
}

type orphan struct{}

func (orphan) Conversation() (chat.ConversationHandle, bool) { return nil, false }
func (orphan) IsSelf() bool                                  { return false }

func TestMessageWithoutConversation(t *testing.T) {
	tests := []struct {
		name  string
		abort bool
		want  int
	}{
		{"abort batch", true, 0},
		{"skip message", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sdk := imsdk.NewClient("me")
			m := chat.NewCentralManager(sdk, sdk, chat.NewMainQueue(), chat.Options{AutoMarkRead: true, AbortBatchOnRead: tt.abort})
			msg := sdk.NewMessage(chat.ConversationC2C, "u1", "after", false)

			m.OnNewMessage([]chat.RawMessage{orphan{}, msg})
			if got := len(m.Inbox()); got != tt.want {
				t.Fatalf("expected %d conversations, got %d", tt.want, got)
			}
		})
	}
}

func TestDeleteConversation(t *testing.T) {
	m, _, _ := newManager(t, chat.DefaultOptions())
	first := m.HoldChat(chat.ConversationC2C, "u1")
	m.Conversation(chat.ConversationC2C, "u2")

	err := m.DeleteConversation(func(c chat.Conversation) bool { return c.Key().ID == "u1" })
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if m.Chatting() != nil {
		t.Fatal("deleting the chatting conversation must clear it")
	}
	if got := len(m.Inbox()); got != 1 {
		t.Fatalf("expected 1 conversation left, got %d", got)
	}
	if again := m.Conversation(chat.ConversationC2C, "u1"); again == first {
		t.Fatal("expected a fresh conversation after delete")
	}

	if err := m.DeleteConversation(func(chat.Conversation) bool { return false }); err != nil {
		t.Fatalf("no match should be a no-op, got %v", err)
	}
}

func TestDeleteConversationFailureKeepsEntry(t *testing.T) {
	f := newFakeFactory()
	m := chat.NewCentralManager(f, f, chat.NewMainQueue(), chat.DefaultOptions())
	m.Conversation(chat.ConversationC2C, "u1")
	f.conv(chat.ConversationC2C, "u1").deleteErr = errors.New("sdk busy")

	if err := m.DeleteConversation(func(chat.Conversation) bool { return true }); err == nil {
		t.Fatal("expected error")
	}
	if got := len(m.Inbox()); got != 1 {
		t.Fatalf("expected conversation kept, got %d", got)
	}
}

func TestMarkRead(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	sdk.Deliver(
		sdk.NewMessage(chat.ConversationC2C, "u1", "a", false),
		sdk.NewMessage(chat.ConversationC2C, "u1", "b", false),
	)
	q.Flush()
	var rec recorder
	m.ListenUnreadCount(chat.ConversationC2C, "u1", rec.count)

	if !m.MarkRead(chat.ConversationC2C, "u1") {
		t.Fatal("expected known conversation")
	}
	if m.MarkRead(chat.ConversationC2C, "nobody") {
		t.Fatal("expected unknown conversation")
	}
	if m.MarkRead(chat.ConversationC2C, "  ") {
		t.Fatal("expected blank id to be rejected")
	}
	q.Flush()
	if diff := cmp.Diff([]int{2, 0}, rec.Counts()); diff != "" {
		t.Fatalf("unread counts mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkReadCanonicalizesID(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "a", false))
	q.Flush()

	if !m.MarkRead(chat.ConversationC2C, " u1 ") {
		t.Fatal("expected padded id to resolve to the known conversation")
	}
	if got := m.Conversation(chat.ConversationC2C, "u1").UnreadCount(); got != 0 {
		t.Fatalf("expected unread 0, got %d", got)
	}
}

func TestSubscribersGetOwnContent(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	var b recorder
	m.Subscribe("a", func(n chat.Notification) { *n.Content = "changed" })
	m.Subscribe("b", b.note)

	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "hello", false))
	q.Flush()

	want := []chat.Notification{{ReceiverID: "u1", Content: strPtr("hello"), UnreadCount: 1}}
	if diff := cmp.Diff(want, b.Notes()); diff != "" {
		t.Fatalf("subscriber b mismatch (-want +got):\n%s", diff)
	}
}

func TestDetachStopsRouting(t *testing.T) {
	m, sdk, q := newManager(t, chat.DefaultOptions())
	m.Detach()
	sdk.Deliver(sdk.NewMessage(chat.ConversationC2C, "u1", "lost", false))
	q.Flush()
	if got := len(m.Inbox()); got != 0 {
		t.Fatalf("expected no routing after detach, got %d conversations", got)
	}
}
