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

type DateController struct {
	svc       *services.DateService
	heartbeat time.Duration
}

func NewDateController(svc *services.DateService, heartbeat time.Duration) *DateController {
	return &DateController{svc: svc, heartbeat: heartbeat}
}

type CreateDateReq struct {
	Title       string    `json:"title" binding:"required"`
	Details     *string   `json:"details"`
	Location    string    `json:"location"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Category    string    `json:"category"`
	Photos      []string  `json:"photos"`
}

func (h *DateController) Create(c *gin.Context) {
	u := middleware.CurrentUser(c)

	var req CreateDateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	d, err := h.svc.Create(c.Request.Context(), u.ID, services.DateInput{
		Title:       req.Title,
		Details:     req.Details,
		Location:    req.Location,
		ScheduledAt: req.ScheduledAt,
		Category:    req.Category,
		Photos:      req.Photos,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": d})
}

func (h *DateController) filter(c *gin.Context) services.DateFilter {
	f := services.DateFilter{
		Category: c.Query("category"),
		Limit:    queryInt(c, "limit", 0),
	}
	if c.Query("include_mine") != "true" {
		f.ExcludeID = middleware.CurrentUser(c).ID
	}
	return f
}

// List returns open dates, newest first.
func (h *DateController) List(c *gin.Context) {
	dates, err := h.svc.ListOpen(c.Request.Context(), h.filter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dates})
}

func (h *DateController) Stream(c *gin.Context) {
	f := h.filter(c)
	streamSnapshots(c, "dates", h.heartbeat, func(fn services.Snapshot[[]models.DatePosting]) (*realtime.Subscription, error) {
		return h.svc.SubscribeOpen(f, fn), nil
	})
}

func (h *DateController) Mine(c *gin.Context) {
	u := middleware.CurrentUser(c)
	dates, err := h.svc.ListByHost(c.Request.Context(), u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dates})
}

func (h *DateController) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": d})
}

// Close runs behind CheckDateHost.
func (h *DateController) Close(c *gin.Context) {
	u := middleware.CurrentUser(c)
	d := c.MustGet(middleware.CtxDate).(models.DatePosting)

	closed, err := h.svc.Close(c.Request.Context(), u.ID, d.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Date closed",
		"data":    closed,
	})
}
