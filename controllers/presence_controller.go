package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/dating-server/middleware"
	"github.com/vnkhanh/dating-server/models"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/services"
)

type PresenceController struct {
	svc       *services.PresenceService
	heartbeat time.Duration
}

func NewPresenceController(svc *services.PresenceService, heartbeat time.Duration) *PresenceController {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &PresenceController{svc: svc, heartbeat: heartbeat}
}

// Connect keeps the caller online for as long as this stream stays open.
// The request context ending is the disconnect signal.
func (h *PresenceController) Connect(c *gin.Context) {
	u := middleware.CurrentUser(c)

	conn, err := h.svc.Connect(c.Request.Context(), u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	sseHeaders(c)
	c.SSEvent("presence", gin.H{"user_id": u.ID, "state": models.PresenceOnline})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		}
	})
}

func (h *PresenceController) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (h *PresenceController) Stream(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	streamSnapshots(c, "presence", h.heartbeat, func(fn services.Snapshot[*models.PresenceRecord]) (*realtime.Subscription, error) {
		return h.svc.Subscribe(id, fn), nil
	})
}

// Reset marks every record offline. Admin only; the same reset runs at
// start-up.
func (h *PresenceController) Reset(c *gin.Context) {
	n, err := h.svc.ResetAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}
