package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/pelusa-v/zebra-chat/internal/chat"
	"github.com/pelusa-v/zebra-chat/internal/config"
	"github.com/pelusa-v/zebra-chat/internal/handlers"
	"github.com/pelusa-v/zebra-chat/internal/imsdk"
	"github.com/pelusa-v/zebra-chat/internal/logging"
	"github.com/pelusa-v/zebra-chat/internal/metrics"
)

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfigFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("failed to load config")
	}
	cleanup, err := logging.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("failed to init logging")
	}
	defer cleanup()
	for _, w := range cfg.Validate() {
		logging.Get().Warn().Msg(w)
	}

	// 主调度队列: 所有回调都在这里执行
	queue := chat.NewMainQueue()
	queue.Start()
	defer queue.Stop()

	sdk := imsdk.NewClient(cfg.UserID)
	manager := chat.NewCentralManager(sdk, sdk, queue, chat.Options{
		AutoMarkRead:     cfg.AutoMarkRead,
		AbortBatchOnRead: cfg.AbortBatchOnRead,
	})
	manager.Attach()
	defer manager.Detach()

	manager.ListenMessages(func(n chat.Notification) {
		content := ""
		if n.Content != nil {
			content = *n.Content
		}
		logging.Get().Info().Str("from", n.ReceiverID).Str("content", content).Int("unread", n.UnreadCount).Msg("new message")
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Static("/", cfg.PublicDir)
	handlers.New(manager, sdk).Register(app)
	if cfg.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.PromHandler()))
		app.Get("/api/stats", adaptor.HTTPHandler(metrics.JSONHandler()))
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		_ = app.Shutdown()
	}()

	logging.Get().Info().Str("addr", cfg.ListenAddr).Msg("listening")
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logging.Get().Error().Err(err).Msg("server stopped")
	}
}
