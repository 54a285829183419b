package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"Parry-QV/internal/action"
	"Parry-QV/internal/api"
	"Parry-QV/internal/auth"
	"Parry-QV/internal/config"
	"Parry-QV/internal/observability/metrics"
	"Parry-QV/internal/views"
	"Parry-QV/pkg/logger"
)

// main 是 Parry-QV 网关守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "parryqvd 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("PARRYQV_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "parryqv.json")
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		configPath = ""
	}

	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	log := logger.Named("parryqvd")

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	defer undo()
	if err != nil {
		log.Warn("设置 GOMAXPROCS 失败", slog.Any("error", err))
	}

	m := metrics.New(nil)

	node, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer node.close()

	if cfg.Wallet.AutoConnect && node.wallet != nil {
		account, err := node.resolver.Connect(ctx)
		if err != nil {
			log.Warn("钱包自动连接失败", slog.Any("error", err))
		} else {
			log.Info("钱包已连接", slog.String("account", account.Hex()))
		}
	}

	cache, err := openViews(ctx, cfg, node, m)
	if err != nil {
		return err
	}
	defer cache.close()

	submitter, err := buildSubmitter(cfg, node, m)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}
	service := action.NewService(store, queue)
	defer func() {
		if err := service.Close(); err != nil {
			log.Warn("关闭动作服务失败", slog.Any("error", err))
		}
	}()

	processor := action.NewProcessor(store, queue,
		action.NewChainState(node.bindings, node.reader),
		submitter,
		action.WithWorkerCount(cfg.Actions.Workers),
		action.WithAlertDispatcher(buildAlerting(cfg)),
		action.WithInvalidator(cache.views),
		action.WithRecorder(m),
		action.WithProcessorLogger(logger.Named("action")),
	)
	if _, err := processor.RecoverInterrupted(ctx, cfg.Actions.StaleAfter); err != nil {
		return err
	}

	guard, err := auth.NewService(cfg.Auth.Keys)
	if err != nil {
		return err
	}
	if !guard.Enabled() {
		log.Warn("未配置 API Key，变更类接口不做认证")
	}

	opts := []api.Option{
		api.WithAuth(guard),
		api.WithViews(cache.views),
		api.WithActions(service),
		api.WithSession(node.resolver),
		api.WithMetrics(m),
		api.WithExplorer(cfg.Chain.TransactionURL),
		api.WithCORSOrigins(cfg.Server.CORSOrigins...),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if cfg.PinningEnabled() {
		pinner, err := buildPinner(cfg)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithPinner(pinner))
	}
	server := api.NewServer(cfg.Server.Address, opts...)

	warmer := views.NewWarmer(cache.views, cfg.Cache.WarmInterval)
	if err := warmer.Start(ctx); err != nil {
		return err
	}
	defer warmer.Stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCanceled(processor.Start(gctx))
	})
	group.Go(func() error {
		return ignoreCanceled(cache.views.Run(gctx))
	})
	if node.wallet != nil {
		group.Go(func() error {
			return ignoreCanceled(views.WatchAccounts(gctx, node.wallet, cache.views))
		})
	}
	group.Go(func() error {
		return ignoreCanceled(server.Start(gctx))
	})
	if addr := cfg.Server.MetricsAddress; addr != "" {
		group.Go(func() error {
			return ignoreCanceled(m.StartServer(gctx, addr))
		})
	}

	log.Info("parryqvd 已启动",
		slog.String("network", cfg.Network),
		slog.String("strategy", cfg.Submit.Strategy),
		slog.String("store", cfg.Actions.Store.Driver),
		slog.String("queue", cfg.Actions.Queue.Driver),
		slog.String("cache", cfg.Cache.Driver))

	err = group.Wait()
	log.Info("parryqvd 已停止")
	return err
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
