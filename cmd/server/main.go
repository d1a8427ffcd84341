package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhijithm34/chat-app/internal/config"
	"github.com/abhijithm34/chat-app/internal/db"
	"github.com/abhijithm34/chat-app/internal/files"
	clog "github.com/abhijithm34/chat-app/internal/log"
	"github.com/abhijithm34/chat-app/internal/rooms"
	"github.com/abhijithm34/chat-app/internal/server"
	"github.com/abhijithm34/chat-app/internal/service"
	"github.com/abhijithm34/chat-app/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、连接数据库、装配组件并启动服务；
	// 收到终止信号后先停 HTTP，再同步跑完文件清理，最后关库退出。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("create upload dir")
	}

	roomSvc := service.NewRoomService(gdb)
	msgSvc := service.NewMessageService(gdb)
	uploadSvc := service.NewUploadService(gdb)

	dir := rooms.NewDirectory()
	hub := ws.NewHub()

	keeper := files.NewKeeper(cfg.UploadDir, cfg.FileTTL, uploadSvc, msgSvc, hub)
	if err := keeper.Restore(); err != nil {
		log.Error().Err(err).Msg("restore tracked uploads")
	}
	keeper.StartSweep(cfg.SweepInterval)

	h := server.NewHandler(cfg, roomSvc, msgSvc, keeper, hub, dir)
	r := server.SetupRouter(cfg, h, hub, dir, roomSvc, msgSvc)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// 停机清理必须同步等完：每个在跟踪的文件恰好删除一次。
	if err := keeper.ShutdownCleanup(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("file cleanup")
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}
