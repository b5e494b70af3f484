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

type NotificationController struct {
	svc       *services.NotificationService
	devices   *services.DeviceService
	heartbeat time.Duration
}

func NewNotificationController(svc *services.NotificationService, devices *services.DeviceService, heartbeat time.Duration) *NotificationController {
	return &NotificationController{svc: svc, devices: devices, heartbeat: heartbeat}
}

func (h *NotificationController) List(c *gin.Context) {
	u := middleware.CurrentUser(c)
	notes, err := h.svc.List(c.Request.Context(), u.ID, c.Query("unread") == "true", queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": notes})
}

func (h *NotificationController) MarkRead(c *gin.Context) {
	u := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), u.ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationController) Stream(c *gin.Context) {
	u := middleware.CurrentUser(c)
	streamSnapshots(c, "notifications", h.heartbeat, func(fn services.Snapshot[[]models.Notification]) (*realtime.Subscription, error) {
		return h.svc.Subscribe(u.ID, fn), nil
	})
}

type RegisterDeviceReq struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

func (h *NotificationController) RegisterDevice(c *gin.Context) {
	u := middleware.CurrentUser(c)

	var req RegisterDeviceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tok, err := h.devices.Register(c.Request.Context(), services.RegisterDeviceInput{
		UserID:   u.ID,
		Token:    req.Token,
		Platform: req.Platform,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": tok})
}

func (h *NotificationController) UnregisterDevice(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if err := h.devices.Unregister(c.Request.Context(), u.ID, c.Param("token")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
