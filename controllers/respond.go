package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/dating-server/middleware"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
)

// respondError writes err with the status its code maps to. Internal causes
// are never sent to the client.
func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"message": apperrors.PublicMessage(err),
		"code":    apperrors.CodeOf(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, ok := middleware.ParamID(c, name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid " + name})
	}
	return id, ok
}

// queryInt returns def when the parameter is absent or not a number.
func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return n
}

func queryUint(c *gin.Context, name string) uint {
	n, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil {
		return 0
	}
	return uint(n)
}
