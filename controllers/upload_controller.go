package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/dating-server/middleware"
	apperrors "github.com/vnkhanh/dating-server/pkg/errors"
	"github.com/vnkhanh/dating-server/utils"
)

type UploadController struct {
	uploader utils.Uploader
}

// NewUploadController accepts a nil uploader; uploads then answer 503.
func NewUploadController(uploader utils.Uploader) *UploadController {
	return &UploadController{uploader: uploader}
}

// UploadFile stores one photo under the caller's folder and returns its URL.
func (h *UploadController) UploadFile(c *gin.Context) {
	if h.uploader == nil {
		respondError(c, apperrors.ErrUploadUnavailable)
		return
	}
	u := middleware.CurrentUser(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxUploadSize+1<<20)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing file"})
		return
	}
	if _, err := utils.CheckImage(fileHeader); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	publicURL, err := h.uploader.Upload(fileHeader, "users/"+strconv.FormatUint(uint64(u.ID), 10))
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.CodeInternal, "upload failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Upload complete",
		"url":     publicURL,
	})
}
