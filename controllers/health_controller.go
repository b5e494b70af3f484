package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewHealthController takes an optional redis client.
func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{db: db, rdb: rdb}
}

func (h *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := gin.H{
		"status":  "ok",
		"message": "Service is healthy",
		"db":      "ok",
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		response["status"] = "error"
		response["db"] = "error: cannot get DB instance"
		c.JSON(http.StatusInternalServerError, response)
		return
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		response["status"] = "error"
		response["db"] = "error: cannot connect to DB"
		c.JSON(http.StatusInternalServerError, response)
		return
	}

	if h.rdb != nil {
		response["redis"] = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			// Typing state degrades, the rest keeps working.
			response["status"] = "degraded"
			response["redis"] = "error: cannot reach redis"
		}
	}

	c.JSON(http.StatusOK, response)
}
