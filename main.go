package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/hangout/api/rest"
	"github.com/kasuganosora/hangout/api/sse"
	apiws "github.com/kasuganosora/hangout/api/ws"
	"github.com/kasuganosora/hangout/audit"
	"github.com/kasuganosora/hangout/cache"
	"github.com/kasuganosora/hangout/config"
	dbadapter "github.com/kasuganosora/hangout/db"
	"github.com/kasuganosora/hangout/metrics"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/notify"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/scheduler"
	"github.com/kasuganosora/hangout/social/chat"
	"github.com/kasuganosora/hangout/social/friend"
	"github.com/kasuganosora/hangout/social/presence"
	"github.com/kasuganosora/hangout/social/room"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret must be set")
	}
	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Realtime / Notifications ----
	pub := realtime.NewPublisher(pubsub, logger)
	store := notify.NewStore(db)
	notifier := notify.Multi{store}
	if cfg.Notify.SMTPHost != "" {
		notifier = append(notifier, notify.NewMailer(db, cfg.Notify))
		logger.Info("email notifications enabled", zap.String("smtp_host", cfg.Notify.SMTPHost))
	}

	// ---- Social core ----
	presenceSvc := presence.NewService(db, pub, cfg.Presence, logger)
	friendSvc := friend.NewService(db, pub, notifier, cfg.Presence, logger)
	roomSvc := room.NewService(db, pub, cfg.Room, logger)
	chatSvc := chat.NewService(db, c, roomSvc, pub, cfg.Chat, logger)

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.Every("live_session_reaper", cfg.Presence.ReapInterval, func(ctx context.Context) error {
		_, err := presenceSvc.ReapStale(ctx)
		return err
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), metrics.GinMiddleware())
	r.Use(mw.RateLimit(mw.ByIP, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ---- WebSocket ----
	sm := apiws.NewSessionManager(logger)
	wsH := apiws.NewHandler(apiws.Deps{
		Subscriber:    pub,
		Rooms:         roomSvc,
		Recent:        chatSvc,
		Presence:      presenceSvc,
		Cache:         c,
		Security:      cfg.Security,
		TouchInterval: cfg.Presence.TouchInterval,
	}, sm, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pub, roomSvc, chatSvc, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- REST API routes ----
	adminH := apirest.NewAdminHandler(db, roomSvc, auditSvc, sched, logger)
	adminH.SetDisconnector(sm)
	handlers := &apirest.Handlers{
		Auth:          apirest.NewAuthHandler(db, c, cfg.Security, logger),
		Friends:       apirest.NewFriendHandler(friendSvc, logger),
		Rooms:         apirest.NewRoomHandler(roomSvc, logger),
		Messages:      apirest.NewMessageHandler(chatSvc, logger),
		Presence:      apirest.NewPresenceHandler(presenceSvc, cfg.Presence, logger),
		Notifications: apirest.NewNotificationHandler(store, logger),
		Admin:         adminH,
	}
	handlers.Mount(r.Group("/api"), apirest.Guards{
		Protect: []gin.HandlerFunc{
			mw.Auth(cfg.Security, c),
			mw.Touch(presenceSvc, c, cfg.Presence.TouchInterval, logger),
		},
		Admin: []gin.HandlerFunc{
			mw.IPWhitelist(cfg.Server.AdminIPs),
			mw.AdminAuth(cfg.Server.AdminKey),
		},
		Post: []gin.HandlerFunc{
			mw.RateLimit(mw.ByUser, rate.Limit(cfg.Security.PostRateRPS), cfg.Security.PostRateBurst),
		},
	}, auditSvc)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	// Cancelling baseCtx ends SSE streams, which Shutdown would otherwise wait on.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// Hijacked sockets are not tracked by Shutdown, close them first.
	sm.CloseAll(5 * time.Second)
	stopStreams()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	sched.Stop()
	auditSvc.Stop(ctx)
}
