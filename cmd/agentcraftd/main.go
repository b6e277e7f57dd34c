package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentCraft/internal/api"
	"AgentCraft/internal/catalog"
	"AgentCraft/internal/config"
	"AgentCraft/internal/generator"
	"AgentCraft/internal/observability/alerting"
	"AgentCraft/internal/observability/metrics"
	"AgentCraft/internal/orchestrator"
	"AgentCraft/internal/runtime"
	"AgentCraft/internal/runtime/provider"
	"AgentCraft/internal/task"
	"AgentCraft/pkg/logger"
)

// main 是 AgentCraft 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentcraftd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTCRAFT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentcraft.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 初始化运行时客户端并校验目标集群的安装状态。
	runtimeRegistry, err := provider.NewRegistry(cfg.Runtime)
	if err != nil {
		return err
	}
	defer runtimeRegistry.Close()

	runtimeClient, err := runtimeRegistry.DefaultClient()
	if err != nil {
		return err
	}

	if err := runtime.VerifyInstallation(ctx, runtimeClient, runtime.InstallOptions{
		Namespace:      cfg.Runtime.Namespace,
		RequiredCRDs:   cfg.Runtime.Install.RequiredCRDs,
		ControllerName: cfg.Runtime.Install.ControllerName,
		Retries:        cfg.Runtime.Install.Retries,
		Backoff:        time.Duration(cfg.Runtime.Install.BackoffSeconds) * time.Second,
	}); err != nil {
		return err
	}
	logger.L().Info("运行时安装校验通过",
		slog.String("namespace", cfg.Runtime.Namespace),
		slog.String("driver", cfg.Runtime.Driver),
	)

	collector := metrics.NewCollector()
	alerts := alerting.NewFanout(alerting.LogNotifier{})

	// 能力目录后台周期性刷新。
	toolCatalog := catalog.NewCache(runtimeClient, cfg.Runtime.Namespace, catalog.WithMetrics(collector))
	go toolCatalog.Run(ctx, time.Duration(cfg.Discovery.IntervalSeconds)*time.Second)

	deployRegistry := orchestrator.NewMemoryRegistry()
	manager := orchestrator.NewManager(runtimeClient, deployRegistry, cfg.Runtime.Namespace,
		orchestrator.WithCatalog(toolCatalog),
		orchestrator.WithMetrics(collector),
		orchestrator.WithAlertDispatcher(alerts),
	)

	taskStore := task.NewMemoryStore()
	defer func() {
		_ = taskStore.Close()
	}()

	var taskQueue task.Queue
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		taskQueue = task.NewMemoryQueue(1024)
	case "redis":
		queue, err := task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.TaskQueue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	case "rabbitmq":
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.TaskQueue.RabbitMQ.URL,
			Queue:      cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch:   cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:    cfg.TaskQueue.RabbitMQ.Durable,
			AutoDelete: cfg.TaskQueue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		taskQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Driver)
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			logger.L().Warn("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	gen := generator.New(manager)
	taskService := task.NewService(taskStore, taskQueue)
	processor := task.NewProcessor(gen, taskStore, taskQueue,
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithDeadline(time.Duration(cfg.TaskQueue.DeadlineSeconds)*time.Second),
		task.WithMetrics(collector),
		task.WithAlertDispatcher(alerts),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, manager, taskService, toolCatalog, collector)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
