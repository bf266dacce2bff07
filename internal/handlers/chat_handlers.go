package handlers

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pelusa-v/zebra-chat/internal/chat"
	"github.com/pelusa-v/zebra-chat/internal/imsdk"
	"github.com/pelusa-v/zebra-chat/internal/logging"
)

type Handlers struct {
	Manager *chat.CentralManager
	SDK     *imsdk.Client
}

func New(m *chat.CentralManager, sdk *imsdk.Client) *Handlers {
	return &Handlers{Manager: m, SDK: sdk}
}

// Register mounts the API routes on app.
func (h *Handlers) Register(app *fiber.App) {
	app.Use("/api/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/ws/notify/:id", websocket.New(h.NotifyHandler))

	app.Get("/api/inbox", h.InboxHandler)
	app.Post("/api/inbox/read", h.MarkReadHandler) // ?type=&id=
	app.Get("/api/unread", h.UnreadHandler)        // ?type=&id=
	app.Get("/api/subscribers", h.SubscribersHandler)
	app.Post("/api/subscribers/remove", h.RemoveSubscriberHandler)    // ?id=
	app.Post("/api/chat/hold", h.HoldChatHandler)                     // ?type=&id=
	app.Post("/api/chat/waive", h.WaiveChatHandler)
	app.Post("/api/conversation/delete", h.DeleteConversationHandler) // ?type=&id=
	app.Post("/api/inbound", h.InboundHandler)
}

// NotifyHandler GET /api/ws/notify/:id  (":id" = "new" picks a fresh id)
func (h *Handlers) NotifyHandler(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" || id == "new" {
		id = uuid.NewString()
	}
	client := chat.NewClient(id, c)
	client.Sub = h.Manager.Register(id, client.Deliver)
	if client.Sub == nil {
		logging.Get().Warn().Str("subscriber", id).Msg("subscriber id already in use")
		_ = c.Close()
		return
	}
	logging.Get().Info().Str("subscriber", id).Msg("subscriber connected")
	go client.WritePump()
	client.ReadPump(h.Manager)
	logging.Get().Info().Str("subscriber", id).Msg("subscriber disconnected")
}

// conversationParams reads ?type=&id=.
func conversationParams(c *fiber.Ctx) (chat.ConversationType, string, error) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		return 0, "", fiber.NewError(fiber.StatusBadRequest, "missing id")
	}
	t := chat.ConversationC2C
	if raw := c.Query("type"); raw != "" {
		parsed, err := chat.ParseConversationType(raw)
		if err != nil {
			return 0, "", fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		t = parsed
	}
	return t, id, nil
}

// InboxHandler GET /api/inbox
func (h *Handlers) InboxHandler(c *fiber.Ctx) error {
	return c.JSON(h.Manager.Inbox())
}

// MarkReadHandler POST /api/inbox/read?type=&id=
func (h *Handlers) MarkReadHandler(c *fiber.Ctx) error {
	t, id, err := conversationParams(c)
	if err != nil {
		return err
	}
	if !h.Manager.MarkRead(t, id) {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UnreadHandler GET /api/unread?type=&id=
func (h *Handlers) UnreadHandler(c *fiber.Ctx) error {
	t, id, err := conversationParams(c)
	if err != nil {
		return err
	}
	conv := h.Manager.Conversation(t, id)
	if conv == nil {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.JSON(fiber.Map{"type": t, "id": conv.Key().ID, "unread": conv.UnreadCount()})
}

// SubscribersHandler GET /api/subscribers
func (h *Handlers) SubscribersHandler(c *fiber.Ctx) error {
	return c.JSON(h.Manager.Subscribers())
}

// RemoveSubscriberHandler POST /api/subscribers/remove?id=  (empty id removes all but the external one)
func (h *Handlers) RemoveSubscriberHandler(c *fiber.Ctx) error {
	h.Manager.RemoveListener(c.Query("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

// HoldChatHandler POST /api/chat/hold?type=&id=
func (h *Handlers) HoldChatHandler(c *fiber.Ctx) error {
	t, id, err := conversationParams(c)
	if err != nil {
		return err
	}
	conv := h.Manager.HoldChat(t, id)
	if conv == nil {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.JSON(fiber.Map{"type": t, "id": conv.Key().ID})
}

// WaiveChatHandler POST /api/chat/waive
func (h *Handlers) WaiveChatHandler(c *fiber.Ctx) error {
	h.Manager.WaiveChat()
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteConversationHandler POST /api/conversation/delete?type=&id=
func (h *Handlers) DeleteConversationHandler(c *fiber.Ctx) error {
	t, id, err := conversationParams(c)
	if err != nil {
		return err
	}
	key := chat.ConversationKey{Type: t, ID: id}
	err = h.Manager.DeleteConversation(func(conv chat.Conversation) bool {
		return conv.Key() == key
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type inboundMessage struct {
	Type chat.ConversationType `json:"type"`
	ID   string                `json:"id"`
	Text string                `json:"text"`
	Self bool                  `json:"self"`
}

// InboundHandler POST /api/inbound  body: one object or an array, delivered as one batch
func (h *Handlers) InboundHandler(c *fiber.Ctx) error {
	var batch []inboundMessage
	body := bytes.TrimSpace(c.Body())
	if bytes.HasPrefix(body, []byte("[")) {
		if err := json.Unmarshal(body, &batch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	} else {
		var one inboundMessage
		if err := json.Unmarshal(body, &one); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		batch = append(batch, one)
	}
	if len(batch) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty batch")
	}

	msgs := make([]*imsdk.Message, 0, len(batch))
	for _, in := range batch {
		t := in.Type
		if t == 0 {
			t = chat.ConversationC2C
		}
		msgs = append(msgs, h.SDK.NewMessage(t, in.ID, in.Text, in.Self))
	}
	h.SDK.Deliver(msgs...)
	return c.SendStatus(fiber.StatusAccepted)
}
