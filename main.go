package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TIANLI0/maskpaint/config"
	"github.com/TIANLI0/maskpaint/handler"
	"github.com/TIANLI0/maskpaint/magic"
	"github.com/TIANLI0/maskpaint/service"
	"github.com/TIANLI0/maskpaint/service/grabcut"
	"github.com/TIANLI0/maskpaint/session"
	"github.com/TIANLI0/maskpaint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting maskpaint server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		utils.Logger.Fatal("invalid editor config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 分割辅助后端
	var predictor magic.Predictor
	switch cfg.Magic.Backend {
	case "local":
		predictor = grabcut.NewService(&cfg.GrabCut)
	default:
		predictor = magic.NewRemotePredictor(cfg.Magic.Endpoint, &http.Client{})
	}
	utils.Logger.Info("assist backend selected", zap.String("backend", cfg.Magic.Backend))

	// 初始化Redis
	if cfg.Redis.Enabled {
		redisService := service.NewRedisService(&cfg.Redis)
		defer redisService.Close()
		if err := redisService.Ping(ctx); err != nil {
			utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			utils.Logger.Info("redis connected successfully")
			predictor = magic.NewCachedPredictor(predictor, redisService)
		}
	}

	bridge := magic.NewBridge(predictor, cfg.Magic.Assist, cfg.Magic.Timeout)
	loop := session.NewLoop(session.New(opts, bridge), cfg.Editor.RefreshInterval)
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	datasets := service.NewDatasetService(cfg.Dataset.Root)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := handler.SetupRouter(
		handler.NewSessionHandler(cfg, loop, datasets),
		handler.NewDatasetHandler(datasets),
		handler.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			BuildID:   BuildID,
			GitCommit: GitCommit,
			GitBranch: GitBranch,
		},
	)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	utils.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Warn("server shutdown failed", zap.Error(err))
	}
	<-loopDone
}
