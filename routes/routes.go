package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/vnkhanh/dating-server/config"
	"github.com/vnkhanh/dating-server/controllers"
	"github.com/vnkhanh/dating-server/middleware"
	"github.com/vnkhanh/dating-server/services"
	"github.com/vnkhanh/dating-server/utils"
)

type Services struct {
	Auth          *services.AuthService
	Profiles      *services.ProfileService
	Dates         *services.DateService
	Requests      *services.RequestService
	Chats         *services.ChatService
	Presence      *services.PresenceService
	Notifications *services.NotificationService
	Devices       *services.DeviceService
}

// NewServices wires every service over one set of deps. typing may be nil
// to keep typing state in the database.
func NewServices(d services.Deps, tokens *utils.TokenIssuer, googleClientID string, typing services.TypingStore, typingTTL time.Duration) Services {
	notifications := services.NewNotificationService(d)
	return Services{
		Auth:          services.NewAuthService(d, tokens, googleClientID),
		Profiles:      services.NewProfileService(d),
		Dates:         services.NewDateService(d),
		Requests:      services.NewRequestService(d, notifications),
		Chats:         services.NewChatService(d, typing, typingTTL, notifications),
		Presence:      services.NewPresenceService(d),
		Notifications: notifications,
		Devices:       services.NewDeviceService(d),
	}
}

type Deps struct {
	DB        *gorm.DB
	Redis     *redis.Client // optional
	Tokens    *utils.TokenIssuer
	Uploader  utils.Uploader // optional
	Services  Services
	Heartbeat time.Duration
	Limits    config.RateLimit
}

func SetupRoutes(r *gin.Engine, d Deps) {
	health := controllers.NewHealthController(d.DB, d.Redis)
	auth := controllers.NewAuthController(d.Services.Auth)
	profiles := controllers.NewProfileController(d.Services.Profiles, d.Heartbeat)
	dates := controllers.NewDateController(d.Services.Dates, d.Heartbeat)
	requests := controllers.NewRequestController(d.Services.Requests, d.Heartbeat)
	chats := controllers.NewChatController(d.Services.Chats, d.Heartbeat)
	presence := controllers.NewPresenceController(d.Services.Presence, d.Heartbeat)
	notifications := controllers.NewNotificationController(d.Services.Notifications, d.Services.Devices, d.Heartbeat)
	uploads := controllers.NewUploadController(d.Uploader)

	authLimiter := middleware.NewKeyedRateLimiter(30, 10, 10*time.Minute)
	requestLimiter := middleware.NewKeyedRateLimiter(d.Limits.RequestsPerMin, d.Limits.Burst, 10*time.Minute)
	messageLimiter := middleware.NewKeyedRateLimiter(d.Limits.MessagesPerMin, d.Limits.Burst, 10*time.Minute)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/health", health.HealthCheck)

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.Use(middleware.RateLimitByIP(authLimiter))
		{
			authGroup.POST("/register", auth.Register)
			authGroup.POST("/login", auth.Login)
			authGroup.POST("/google/login", auth.GoogleLogin)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthJWT(d.DB, d.Tokens))
		{
			protected.GET("/me", profiles.Me)
			protected.PATCH("/me", profiles.UpdateMe)
			protected.POST("/uploads", uploads.UploadFile)

			protected.GET("/profiles", profiles.List)
			protected.GET("/profiles/stream", profiles.Stream)
			protected.GET("/profiles/:id", profiles.Get)

			protected.GET("/presence/connect", presence.Connect)
			protected.GET("/presence/:id", presence.Get)
			protected.GET("/presence/:id/stream", presence.Stream)

			protected.GET("/notifications", notifications.List)
			protected.GET("/notifications/stream", notifications.Stream)
			protected.PUT("/notifications/:id/read", notifications.MarkRead)
			protected.POST("/devices", notifications.RegisterDevice)
			protected.DELETE("/devices/:token", notifications.UnregisterDevice)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/presence/reset", presence.Reset)
		}

		// Acting on either side of the product needs a gender.
		dating := protected.Group("")
		dating.Use(middleware.RequireGender())

		datesGroup := dating.Group("/dates")
		{
			datesGroup.POST("", dates.Create)
			datesGroup.GET("", dates.List)
			datesGroup.GET("/stream", dates.Stream)
			datesGroup.GET("/mine", dates.Mine)
			datesGroup.GET("/:id", dates.Get)
			datesGroup.PUT("/:id/close", middleware.CheckDateHost(d.DB), dates.Close)
		}

		requestsGroup := dating.Group("/requests")
		{
			requestsGroup.POST("", middleware.RateLimitByUser(requestLimiter), requests.Create)
			requestsGroup.GET("", requests.List)
			requestsGroup.GET("/stream", requests.Stream)
			requestsGroup.GET("/:id", requests.Get)
			requestsGroup.PUT("/:id/accept", requests.Accept)
			requestsGroup.PUT("/:id/reject", requests.Reject)
			requestsGroup.PUT("/:id/status", requests.UpdateStatus)
			requestsGroup.DELETE("/:id", requests.Withdraw)
		}

		chatsGroup := dating.Group("/chats")
		{
			chatsGroup.GET("", chats.List)
			chatsGroup.GET("/stream", chats.Stream)

			chat := chatsGroup.Group("/:id")
			chat.Use(middleware.CheckChatParticipant(d.DB))
			{
				chat.GET("/messages", chats.Messages)
				chat.POST("/messages", middleware.RateLimitByUser(messageLimiter), chats.Send)
				chat.GET("/messages/stream", chats.StreamMessages)
				chat.PUT("/typing", chats.SetTyping)
				chat.GET("/typing", chats.Typing)
				chat.GET("/typing/stream", chats.StreamTyping)
			}
		}
	}
}
