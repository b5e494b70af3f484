package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/models"
	"github.com/vnkhanh/dating-server/utils"
)

const CtxUser = "user"

// AuthJWT checks Authorization: Bearer <token>, loads the user and puts it
// in the context under CtxUser.
func AuthJWT(db *gorm.DB, issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing or invalid Authorization header"})
			return
		}

		claims, err := issuer.VerifyToken(rawToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}
		uid, err := claims.Uint()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid subject"})
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, uid).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "User not found"})
			return
		}

		c.Set(CtxUser, user)
		c.Next()
	}
}

// bearerToken reads the header, falling back to ?access_token= for
// EventSource clients that cannot set headers.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		if len(authHeader) < 7 || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			return "", false
		}
		tok := strings.TrimSpace(authHeader[7:])
		return tok, tok != ""
	}
	if tok := c.Query("access_token"); tok != "" && isStreamPath(c.Request.URL.Path) {
		return tok, true
	}
	return "", false
}

// CurrentUser returns the user AuthJWT stored. It panics when the route is
// not behind AuthJWT.
func CurrentUser(c *gin.Context) models.User {
	return c.MustGet(CtxUser).(models.User)
}

// RequireAdmin blocks routes meant for admins only.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUser)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		if u := v.(models.User); !u.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		c.Next()
	}
}

// RequireGender lets through only users who completed the gender step, so
// Google sign-ups cannot act on either side before choosing.
func RequireGender() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c).Gender == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Complete your profile first"})
			return
		}
		c.Next()
	}
}

func isStreamPath(p string) bool {
	return strings.HasSuffix(p, "/stream") || strings.HasSuffix(p, "/presence/connect")
}
