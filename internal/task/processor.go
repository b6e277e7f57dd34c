package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/observability/alerting"
	"AgentCraft/internal/observability/metrics"
	"AgentCraft/pkg/logger"
)

// ProgressFunc 在执行器进入新阶段时被调用，阶段名会被记录到任务上。
type ProgressFunc func(name string)

// Executor 定义了处理器所需的请求执行能力。
type Executor interface {
	Execute(ctx context.Context, req Request, progress ProgressFunc) (*ExecutionResult, error)
}

// Processor 负责从队列消费任务并交给执行器处理。
// 任务是一次性的：执行失败直接进入 failed 终态，错误从不逃逸到队列之外。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	workerCount int
	deadline    time.Duration
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	metrics     *metrics.Collector
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithDeadline 设置任务的最长执行时间，超时任务由看护协程强制置为失败。
func WithDeadline(deadline time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.deadline = deadline
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithMetrics 配置指标收集器。
func WithMetrics(collector *metrics.Collector) ProcessorOption {
	return func(p *Processor) {
		p.metrics = collector
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环，阻塞直到上下文取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeNotInitialized, "未配置任务消费者")
	}
	if p.deadline > 0 {
		go p.runWatchdog(ctx)
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeNotInitialized, "处理器未初始化")
	}
	started := time.Now()

	claimed, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskFinished) || stdErrors.Is(err, ErrTaskConflict) {
			p.logDebug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		return err
	}

	execCtx := ctx
	if p.deadline > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}

	progress := func(name string) {
		if _, err := p.store.RecordStep(ctx, claimed.ID, name); err != nil {
			logger.L().Warn("记录任务阶段失败",
				slog.Any("error", err),
				slog.String("task_id", claimed.ID),
				slog.String("step", name),
			)
		}
	}

	result, execErr := p.executor.Execute(execCtx, Request{
		ID:       claimed.ID,
		Input:    claimed.Input,
		Tools:    append([]string(nil), claimed.Tools...),
		AgentID:  claimed.AgentID,
		Metadata: cloneMetadata(claimed.Metadata),
	}, progress)
	if execErr != nil {
		p.handleExecutionFailure(ctx, claimed, execErr)
		p.metrics.ObserveTask("failed", time.Since(started))
		return nil
	}

	var record ExecutionResult
	if result != nil {
		record = *result
	}
	if err := p.store.MarkCompleted(ctx, claimed.ID, record); err != nil {
		logger.L().Error("标记任务完成状态失败", slog.Any("error", err), slog.String("task_id", claimed.ID))
		p.metrics.ObserveTask("failed", time.Since(started))
		return nil
	}
	p.metrics.ObserveTask("completed", time.Since(started))
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", claimed.ID),
		slog.String("input", claimed.Input),
		slog.String("agent_id", record.AgentID),
	)
	return nil
}

// handleExecutionFailure 将执行错误写回任务。任务不重试，
// 失败即终态，错误只体现在任务记录和告警里。
func (p *Processor) handleExecutionFailure(ctx context.Context, claimed *Task, execErr error) {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	if stdErrors.Is(execErr, context.DeadlineExceeded) {
		code = CodeTaskDeadline
	}

	if storeErr := p.store.MarkFailed(ctx, claimed.ID, code, execErr.Error()); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", claimed.ID))
		return
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", claimed.ID),
		slog.String("input", claimed.Input),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
	)
	p.emitAlert(ctx, claimed, code, execErr)
}

// runWatchdog 周期性扫描停留在非终态超时的任务并强制置为失败，
// 覆盖执行卡死的 running 任务和队列消息丢失后无人领取的 created 任务。
func (p *Processor) runWatchdog(ctx context.Context) {
	interval := p.deadline / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale, err := p.store.FailStale(ctx, p.deadline)
			if err != nil {
				logger.L().Error("扫描超时任务失败", slog.Any("error", err))
				continue
			}
			for _, taskID := range stale {
				logger.Audit().Warn("任务超时被强制终止", slog.String("task_id", taskID))
				p.metrics.ObserveTask("deadline", p.deadline)
				p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskDeadline,
					xerrors.New(CodeTaskDeadline, "任务执行超时"))
			}
		}
	}
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, claimed *Task, code xerrors.Code, cause error) {
	if p == nil || p.alerter == nil || claimed == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	if !attrs.Alert {
		return
	}
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		TaskID:     claimed.ID,
		AgentID:    claimed.AgentID,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", claimed.ID),
		)
	}
}
