package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
)

const CtxChat = "chatObj"

// CheckChatParticipant loads the chat in :id and lets only its two
// participants through.
func CheckChatParticipant(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)

		id, ok := ParamID(c, "id")
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid chat id"})
			return
		}

		var chat models.ChatChannel
		if err := db.WithContext(c.Request.Context()).First(&chat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "chat not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}

		if !chat.IsParticipant(u.ID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "not a participant of this chat"})
			return
		}

		c.Set(CtxChat, chat)
		c.Next()
	}
}

// CurrentChat returns the chat CheckChatParticipant loaded.
func CurrentChat(c *gin.Context) models.ChatChannel {
	return c.MustGet(CtxChat).(models.ChatChannel)
}
