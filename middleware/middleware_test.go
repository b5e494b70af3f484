package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vnkhanh/dating-server/config"
	"github.com/vnkhanh/dating-server/models"
	"github.com/vnkhanh/dating-server/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fixture struct {
	db     *gorm.DB
	issuer *utils.TokenIssuer
	host   models.User
	guest  models.User
	date   models.DatePosting
	chat   models.ChatChannel
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{db: newTestDB(t), issuer: utils.NewTokenIssuer("secret", time.Hour)}
	f.host = models.User{Email: "minh@example.com", DisplayName: "Minh", Gender: models.GenderMale}
	f.guest = models.User{Email: "lan@example.com", DisplayName: "Lan", Gender: models.GenderFemale}
	require.NoError(t, f.db.Create(&f.host).Error)
	require.NoError(t, f.db.Create(&f.guest).Error)
	f.date = models.DatePosting{HostID: f.host.ID, Title: "Coffee", ScheduledAt: time.Now(), Status: models.DateStatusOpen}
	require.NoError(t, f.db.Create(&f.date).Error)
	f.chat = models.ChatChannel{HostID: f.host.ID, RequesterID: f.guest.ID, DateID: f.date.ID, RequestID: 1}
	require.NoError(t, f.db.Create(&f.chat).Error)
	return f
}

func (f *fixture) token(t *testing.T, u models.User) string {
	tok, err := f.issuer.GenerateToken(u.ID, u.Gender)
	require.NoError(t, err)
	return tok
}

func TestAuthJWT(t *testing.T) {
	f := newFixture(t)
	r := gin.New()
	r.GET("/me", AuthJWT(f.db, f.issuer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUser(c).ID})
	})
	r.GET("/things/stream", AuthJWT(f.db, f.issuer), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "garbage").Code)

	other := utils.NewTokenIssuer("other-secret", time.Hour)
	forged, err := other.GenerateToken(f.host.ID, f.host.Gender)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", forged).Code)

	ghost, err := f.issuer.GenerateToken(9999, models.GenderMale)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", ghost).Code)

	w := serve(r, http.MethodGet, "/me", f.token(t, f.host))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1}`, w.Body.String())

	// Query tokens are accepted on stream routes only.
	tok := f.token(t, f.guest)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me?access_token="+tok, "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/things/stream?access_token="+tok, "").Code)
}

func TestRequireGender(t *testing.T) {
	f := newFixture(t)
	blank := models.User{Email: "new@example.com", DisplayName: "New"}
	require.NoError(t, f.db.Create(&blank).Error)

	r := gin.New()
	r.GET("/x", AuthJWT(f.db, f.issuer), RequireGender(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/x", f.token(t, blank)).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/x", f.token(t, f.guest)).Code)
}

func TestRequireAdmin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.host).Update("is_admin", true).Error)

	r := gin.New()
	r.GET("/admin", AuthJWT(f.db, f.issuer), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin", f.token(t, f.host)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", f.token(t, f.guest)).Code)
}

func TestCheckDateHost(t *testing.T) {
	f := newFixture(t)
	r := gin.New()
	r.PUT("/dates/:id", AuthJWT(f.db, f.issuer), CheckDateHost(f.db), func(c *gin.Context) {
		d := c.MustGet(CtxDate).(models.DatePosting)
		c.JSON(http.StatusOK, gin.H{"id": d.ID})
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPut, "/dates/1", f.token(t, f.host)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPut, "/dates/1", f.token(t, f.guest)).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPut, "/dates/42", f.token(t, f.host)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPut, "/dates/abc", f.token(t, f.host)).Code)
}

func TestCheckChatParticipant(t *testing.T) {
	f := newFixture(t)
	stranger := models.User{Email: "x@example.com", DisplayName: "X", Gender: models.GenderFemale}
	require.NoError(t, f.db.Create(&stranger).Error)

	r := gin.New()
	r.GET("/chats/:id", AuthJWT(f.db, f.issuer), CheckChatParticipant(f.db), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentChat(c).ID})
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/chats/1", f.token(t, f.host)).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/chats/1", f.token(t, f.guest)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/chats/1", f.token(t, stranger)).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/chats/7", f.token(t, f.host)).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/chats/0", f.token(t, f.host)).Code)
}

func TestRateLimitByUser(t *testing.T) {
	f := newFixture(t)
	rl := NewKeyedRateLimiter(1, 2, time.Minute)
	defer rl.Close()

	r := gin.New()
	r.POST("/send", AuthJWT(f.db, f.issuer), RateLimitByUser(rl), func(c *gin.Context) { c.Status(http.StatusCreated) })

	host := f.token(t, f.host)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/send", host).Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/send", host).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/send", host).Code)

	// Limits are per user.
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/send", f.token(t, f.guest)).Code)
}

func TestIdleKeysAreEvicted(t *testing.T) {
	rl := NewKeyedRateLimiter(60, 1, time.Minute)
	defer rl.Close()
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(2 * time.Minute)
	rl.evictIdle()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}
