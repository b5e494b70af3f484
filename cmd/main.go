package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/dating-server/config"
	"github.com/vnkhanh/dating-server/realtime"
	"github.com/vnkhanh/dating-server/routes"
	"github.com/vnkhanh/dating-server/services"
	"github.com/vnkhanh/dating-server/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Logger)
	slog.SetDefault(log)

	// Connect DB + AutoMigrate
	db, err := config.ConnectDB(cfg.DB, log)
	if err != nil {
		log.Error("connect db", "err", err)
		os.Exit(1)
	}
	rdb := config.NewRedis(cfg.Redis, log)

	deps := services.Deps{DB: db, Hub: realtime.NewHub(), Logger: log, Now: time.Now}
	var typing services.TypingStore
	if rdb != nil {
		typing = services.NewRedisTypingStore(rdb, cfg.Realtime.TypingTTL)
	}
	tokens := utils.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	svcs := routes.NewServices(deps, tokens, cfg.Google.ClientID, typing, cfg.Realtime.TypingTTL)

	// Nobody is connected to a process that just started.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if n, err := svcs.Presence.ResetAll(ctx); err != nil {
		log.Warn("presence reset failed", "err", err)
	} else if n > 0 {
		log.Info("presence reset", "records", n)
	}
	cancel()

	var uploader utils.Uploader
	if up := utils.NewSupabaseUploader(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Bucket); up != nil {
		uploader = up
	} else {
		log.Warn("SUPABASE_URL/SUPABASE_KEY not set, uploads disabled")
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		AllowWildcard:    true,
	}))

	r.GET("/", func(c *gin.Context) {
		c.String(200, "Dating server is running")
	})

	if err := r.SetTrustedProxies(nil); err != nil {
		panic(err)
	}

	routes.SetupRoutes(r, routes.Deps{
		DB:        db,
		Redis:     rdb,
		Tokens:    tokens,
		Uploader:  uploader,
		Services:  svcs,
		Heartbeat: cfg.Realtime.StreamHeartbeat,
		Limits:    cfg.RateLimit,
	})

	log.Info("server listening", "port", cfg.Server.Port, "env", cfg.Server.Environment)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
