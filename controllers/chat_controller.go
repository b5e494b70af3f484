package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/dating-server/middleware"
	"github.com/vnkhanh/dating-server/models"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/services"
)

// ChatController serves /api/chats. Routes with :id run behind
// CheckChatParticipant.
type ChatController struct {
	svc       *services.ChatService
	heartbeat time.Duration
}

func NewChatController(svc *services.ChatService, heartbeat time.Duration) *ChatController {
	return &ChatController{svc: svc, heartbeat: heartbeat}
}

func (h *ChatController) List(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chats, err := h.svc.ListChannels(c.Request.Context(), u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chats})
}

func (h *ChatController) Stream(c *gin.Context) {
	u := middleware.CurrentUser(c)
	streamSnapshots(c, "chats", h.heartbeat, func(fn services.Snapshot[[]models.ChatChannel]) (*realtime.Subscription, error) {
		return h.svc.SubscribeChannels(u.ID, fn), nil
	})
}

// Messages returns one page, newest first. ?before=<message id> pages back.
func (h *ChatController) Messages(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chat := middleware.CurrentChat(c)

	msgs, err := h.svc.ListMessages(c.Request.Context(), chat.ID, u.ID, services.MessagePage{
		BeforeID: queryUint(c, "before"),
		Limit:    queryInt(c, "limit", services.DefaultMessagePage),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	var next uint
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        msgs,
		"next_before": next,
	})
}

type SendMessageReq struct {
	Text string `json:"text" binding:"required"`
}

func (h *ChatController) Send(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chat := middleware.CurrentChat(c)

	var req SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.svc.SendMessage(c.Request.Context(), chat.ID, u.ID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (h *ChatController) StreamMessages(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chat := middleware.CurrentChat(c)
	limit := queryInt(c, "limit", services.DefaultMessagePage)
	streamSnapshots(c, "messages", h.heartbeat, func(fn services.Snapshot[[]models.Message]) (*realtime.Subscription, error) {
		return h.svc.SubscribeMessages(c.Request.Context(), chat.ID, u.ID, limit, fn)
	})
}

type TypingReq struct {
	IsTyping *bool `json:"is_typing" binding:"required"`
}

func (h *ChatController) SetTyping(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chat := middleware.CurrentChat(c)

	var req TypingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.SetTyping(c.Request.Context(), chat.ID, u.ID, *req.IsTyping, u.DisplayName); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatController) Typing(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chat := middleware.CurrentChat(c)
	typers, err := h.svc.ListTyping(c.Request.Context(), chat.ID, u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": typers})
}

func (h *ChatController) StreamTyping(c *gin.Context) {
	u := middleware.CurrentUser(c)
	chat := middleware.CurrentChat(c)
	streamSnapshots(c, "typing", h.heartbeat, func(fn services.Snapshot[[]models.TypingState]) (*realtime.Subscription, error) {
		return h.svc.SubscribeTyping(c.Request.Context(), chat.ID, u.ID, fn)
	})
}
