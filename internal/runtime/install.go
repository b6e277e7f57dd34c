package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/pkg/logger"
)

// InstallOptions 控制安装校验的范围与重试策略。
type InstallOptions struct {
	Namespace      string
	RequiredCRDs   []string
	ControllerName string
	Retries        int
	Backoff        time.Duration
}

// VerifyInstallation 校验目标运行时是否具备部署智能体的前置条件：
// 必需的 CRD、命名空间以及处于 Running 状态的控制器工作负载。
// 瞬时失败会在有限次数内按固定退避重试；确定性的"未安装"则立即致命。
func VerifyInstallation(ctx context.Context, client Client, opts InstallOptions) error {
	if client == nil {
		return xerrors.New(xerrors.CodeNotInitialized, "未配置运行时客户端")
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 5
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		err := checkOnce(ctx, client, opts)
		if err == nil {
			return nil
		}
		// 确定性的缺失不会因为重试而恢复。
		if xerrors.CodeOf(err) == xerrors.CodeNotInitialized {
			return err
		}
		lastErr = err
		logger.L().Warn("安装校验失败，准备重试",
			slog.Int("attempt", attempt),
			slog.Int("retries", retries),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return xerrors.Wrap(xerrors.CodeNotInitialized, lastErr, "安装校验在重试耗尽后仍未通过")
}

func checkOnce(ctx context.Context, client Client, opts InstallOptions) error {
	crds, err := client.ListCRDs(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "查询 CRD 列表失败")
	}
	installed := make(map[string]struct{}, len(crds))
	for _, crd := range crds {
		installed[crd] = struct{}{}
	}
	for _, required := range opts.RequiredCRDs {
		if _, ok := installed[required]; !ok {
			return xerrors.New(xerrors.CodeNotInitialized, fmt.Sprintf("缺少必需的 CRD: %s", required))
		}
	}

	namespaces, err := client.ListNamespaces(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "查询命名空间失败")
	}
	found := false
	for _, ns := range namespaces {
		if ns == opts.Namespace {
			found = true
			break
		}
	}
	if !found {
		return xerrors.New(xerrors.CodeNotInitialized, fmt.Sprintf("缺少必需的命名空间: %s", opts.Namespace))
	}

	pods, err := client.ListAgentPods(ctx, opts.Namespace, opts.ControllerName)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "查询控制器工作负载失败")
	}
	for _, pod := range pods {
		if pod.Phase == PhaseRunning {
			return nil
		}
	}
	return xerrors.Wrap(xerrors.CodeRuntimeAPI, nil,
		fmt.Sprintf("控制器 %s 尚无 Running 实例", opts.ControllerName))
}
