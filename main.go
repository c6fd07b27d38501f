package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"PPInbox/global"
	"PPInbox/logger"
	mid "PPInbox/middleware"
	midsec "PPInbox/middleware/security"
	"PPInbox/module/inbox/service"
	"PPInbox/module/inbox/store"
	"PPInbox/service/mgo"
	"PPInbox/service/natsx"
	redissrv "PPInbox/service/storage/redis"
	"PPInbox/service/ws"
	"PPInbox/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Errorf("[main] load config: %v", err)
		os.Exit(1)
	}
	logger.Configure(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := global.ConfigAll(ctx, cfg); err != nil {
		logger.Errorf("[main] infrastructure boot: %v", err)
		os.Exit(1)
	}
	defer func() { _ = redissrv.CloseRedis() }()

	db := mgo.GetDB()
	if err := store.EnsureIndexes(ctx, db); err != nil {
		logger.Errorf("[main] ensure indexes: %v", err)
		os.Exit(1)
	}

	// 总线：单实例部署连不上 NATS 时只丢跨实例投递，本地照常
	var bus service.Bus
	nats, err := natsx.NewClient(natsx.Config{
		Servers:  cfg.NatsServers,
		Name:     "ppinbox-" + strconv.FormatInt(cfg.NodeID, 10),
		Username: cfg.NatsUsername,
		Password: cfg.NatsPassword,
	})
	if err != nil {
		logger.Warnf("[main] nats unavailable, cross-instance fanout disabled: %v", err)
	} else {
		bus = nats
		defer func() { _ = nats.Close() }()
	}

	gwID := "gw-" + strconv.FormatInt(cfg.NodeID, 10)
	hub := ws.NewHub(gwID, cfg.FanoutWorkers, cfg.FanoutQueue)
	defer hub.Close()

	pub := service.NewPublisher(hub, bus)
	if err := pub.Start(); err != nil {
		logger.Errorf("[main] fanout subscribe: %v", err)
		os.Exit(1)
	}

	convRepo := &store.ConversationRepo{DB: db}
	teamRepo := &store.TeamRepo{DB: db}
	engine := &service.AssignEngine{Conv: convRepo, Teams: teamRepo, Pub: pub}

	jwtOpts := security.DefaultOptions([]byte(cfg.JWTSecret))
	authOpts := midsec.DefaultOptions(jwtOpts)

	webhook := &service.Webhook{
		Conv:        convRepo,
		Teams:       teamRepo,
		Engine:      engine,
		Pub:         pub,
		AppSecret:   []byte(cfg.AppSecret),
		VerifyToken: cfg.VerifyToken,
	}
	api := &service.API{Conv: convRepo, Teams: teamRepo, Engine: engine, Pub: pub}
	wsServer := ws.NewServer(hub, jwtOpts)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	mid.Manager().Add(mid.Origin())
	r.Use(mid.Manager().Use())

	rateOpt := mid.RouteOpt{
		Limit:  cfg.RateLimit,
		Window: time.Duration(cfg.RateWindowSec) * time.Second,
	}
	authOpt := mid.RouteOpt{IsAuth: true, Auth: authOpts}

	// webhook：准入闸在前，核心处理在后
	mid.GET(r, "/webhook", webhook.HandleVerify, mid.RouteOpt{})
	mid.POST(r, "/webhook", webhook.HandleEvents, rateOpt)

	// 坐席 API：会话鉴权
	mid.POST(r, "/api/assignment", api.HandleAssignment, authOpt)
	mid.POST(r, "/api/team", api.HandleTeam, authOpt)
	mid.GET(r, "/api/conversations", api.HandleListConversations, authOpt)
	mid.GET(r, "/api/conversations/:conversation_id/messages", api.HandleListMessages, authOpt)
	mid.POST(r, "/api/conversations/:conversation_id/read", api.HandleMarkRead, authOpt)

	// 订阅端：升级后在 ws 帧里做 auth
	r.GET("/ws", wsServer.HandleWS)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		logger.Infof("[main] listening on %s (node %s)", cfg.HTTPAddr, gwID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] http server: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("[main] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("[main] http shutdown: %v", err)
	}
}
