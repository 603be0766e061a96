package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/koopa0/system-design/14-rps-matchmaking/internal"
	"github.com/koopa0/system-design/14-rps-matchmaking/pkg/logger"
)

func main() {
	// 解析命令行參數
	var (
		configPath = pflag.StringP("config", "c", "", "配置檔路徑 (YAML)")
		port       = pflag.IntP("port", "p", 0, "服務器端口（覆蓋配置檔）")
		logLevel   = pflag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = pflag.String("log-format", "", "日誌格式 (text, json)")
		strict     = pflag.Bool("strict-moves", false, "拒絕 rock/paper/scissors 以外的出拳")
	)
	pflag.Parse()

	// 載入配置：預設值 → 配置檔 → 環境變數 → 命令行
	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply env: %v\n", err)
		os.Exit(1)
	}
	if pflag.CommandLine.Changed("port") {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if pflag.CommandLine.Changed("strict-moves") {
		cfg.Game.StrictMoves = *strict
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// 設置日誌
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	// 傳輸層與 Broker 互相引用：先建 Hub，再把 Broker 掛上去
	hub := internal.NewWebSocketHub(cfg.HubConfig(), log)
	broker := internal.NewBroker(hub, log,
		internal.WithCodeLengths(cfg.Game.RoomIDLength, cfg.Game.InviteCodeLength))
	hub.Attach(broker)

	handler := internal.NewHandler(broker, hub, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("猜拳配對服務器啟動",
			"port", cfg.Server.Port,
			"log_level", cfg.Log.Level,
			"strict_moves", cfg.Game.StrictMoves)
		serverErrors <- server.ListenAndServe()
	}()

	// 等待中斷信號
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉...", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 停止接受新連接；已升級的 WebSocket 不受 Shutdown 管理，需另外關閉
		if err := server.Shutdown(ctx); err != nil {
			log.Error("服務器關閉失敗", "error", err)
		}
		hub.Stop()
	}

	log.Info("服務器已關閉", "stats", broker.Stats())
}
