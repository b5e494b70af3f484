package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
)

const CtxDate = "dateObj"

// ParamID parses a positive numeric path parameter.
func ParamID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// CheckDateHost loads the date in :id and lets only its host through.
func CheckDateHost(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)

		id, ok := ParamID(c, "id")
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid date id"})
			return
		}

		var d models.DatePosting
		if err := db.WithContext(c.Request.Context()).First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "date not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}

		if d.HostID != u.ID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "only the host can change this date"})
			return
		}

		c.Set(CtxDate, d)
		c.Next()
	}
}
