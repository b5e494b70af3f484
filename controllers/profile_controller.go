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

type ProfileController struct {
	svc       *services.ProfileService
	heartbeat time.Duration
}

func NewProfileController(svc *services.ProfileService, heartbeat time.Duration) *ProfileController {
	return &ProfileController{svc: svc, heartbeat: heartbeat}
}

func (h *ProfileController) Me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{"user": u})
}

type UpdateMeReq struct {
	DisplayName *string              `json:"display_name" binding:"omitempty,min=1,max=100"`
	Gender      *string              `json:"gender" binding:"omitempty,oneof=male female"`
	Bio         utils.NullableString `json:"bio"`
	Location    utils.NullableString `json:"location"`
	BirthDate   *time.Time           `json:"birth_date"`
	Photos      *[]string            `json:"photos" binding:"omitempty,max=10,dive,url"`
}

func (h *ProfileController) UpdateMe(c *gin.Context) {
	u := middleware.CurrentUser(c)

	var req UpdateMeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), u.ID, services.ProfilePatch{
		DisplayName: req.DisplayName,
		Gender:      req.Gender,
		Bio:         req.Bio,
		Location:    req.Location,
		BirthDate:   req.BirthDate,
		Photos:      req.Photos,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": updated})
}

func (h *ProfileController) filter(c *gin.Context) services.ProfileFilter {
	return services.ProfileFilter{
		Gender:    c.Query("gender"),
		ExcludeID: middleware.CurrentUser(c).ID,
		Limit:     queryInt(c, "limit", 0),
	}
}

// List returns profiles of the requested gender, excluding the caller.
func (h *ProfileController) List(c *gin.Context) {
	users, err := h.svc.Query(c.Request.Context(), h.filter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (h *ProfileController) Stream(c *gin.Context) {
	f := h.filter(c)
	streamSnapshots(c, "profiles", h.heartbeat, func(fn services.Snapshot[[]models.User]) (*realtime.Subscription, error) {
		if _, err := h.svc.Query(c.Request.Context(), f); err != nil {
			return nil, err
		}
		return h.svc.Subscribe(f, fn), nil
	})
}

func (h *ProfileController) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": u})
}
