package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/dating-server/middleware"
	"github.com/vnkhanh/dating-server/models"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/services"
	"github.com/vnkhanh/dating-server/utils"
)

type RequestController struct {
	svc       *services.RequestService
	heartbeat time.Duration
	now       func() time.Time
}

func NewRequestController(svc *services.RequestService, heartbeat time.Duration) *RequestController {
	return &RequestController{svc: svc, heartbeat: heartbeat, now: time.Now}
}

type SendRequestReq struct {
	DateID  uint   `json:"date_id" binding:"required"`
	HostID  uint   `json:"host_id"`
	Message string `json:"message" binding:"max=500"`
}

func (h *RequestController) Create(c *gin.Context) {
	u := middleware.CurrentUser(c)

	var req SendRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.svc.Send(c.Request.Context(), services.SendRequestInput{
		DateID:      req.DateID,
		HostID:      req.HostID,
		RequesterID: u.ID,
		Message:     req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": r})
}

// role defaults to the side the caller's gender puts them on.
func role(c *gin.Context) string {
	if r := c.Query("role"); r != "" {
		return r
	}
	if middleware.CurrentUser(c).IsHostRole() {
		return services.RoleHost
	}
	return services.RoleRequester
}

// List returns the caller's requests; ?grouped=true buckets them into
// today / this_week / this_month / older.
func (h *RequestController) List(c *gin.Context) {
	u := middleware.CurrentUser(c)
	reqs, err := h.svc.List(c.Request.Context(), u.ID, role(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("grouped") == "true" {
		c.JSON(http.StatusOK, gin.H{"data": utils.GroupByRecency(h.now(), reqs, func(r models.JoinRequest) time.Time {
			return r.CreatedAt
		})})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reqs})
}

func (h *RequestController) Stream(c *gin.Context) {
	u := middleware.CurrentUser(c)
	r := role(c)
	streamSnapshots(c, "requests", h.heartbeat, func(fn services.Snapshot[[]models.JoinRequest]) (*realtime.Subscription, error) {
		return h.svc.Subscribe(u.ID, r, fn)
	})
}

func (h *RequestController) Get(c *gin.Context) {
	u := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.svc.Get(c.Request.Context(), u.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (h *RequestController) Accept(c *gin.Context) {
	h.respond(c, models.RequestAccepted)
}

func (h *RequestController) Reject(c *gin.Context) {
	h.respond(c, models.RequestRejected)
}

type UpdateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *RequestController) UpdateStatus(c *gin.Context) {
	var req UpdateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, req.Status)
}

func (h *RequestController) respond(c *gin.Context, status string) {
	u := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.svc.UpdateStatus(c.Request.Context(), u.ID, id, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": r})
}

// Withdraw deletes the caller's own pending request.
func (h *RequestController) Withdraw(c *gin.Context) {
	u := middleware.CurrentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Withdraw(c.Request.Context(), u.ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request withdrawn"})
}
