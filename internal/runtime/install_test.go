package runtime

import (
	"context"
	"testing"
	"time"

	xerrors "AgentCraft/internal/errors"
)

// fakeInstallClient 允许逐次返回不同结果，模拟瞬时与确定性失败。
type fakeInstallClient struct {
	Client
	crdResults [][]string
	crdErrs    []error
	calls      int
	namespaces []string
	pods       []PodInfo
}

func (f *fakeInstallClient) ListCRDs(context.Context) ([]string, error) {
	idx := f.calls
	if idx >= len(f.crdResults) {
		idx = len(f.crdResults) - 1
	}
	f.calls++
	return f.crdResults[idx], f.crdErrs[idx]
}

func (f *fakeInstallClient) ListNamespaces(context.Context) ([]string, error) {
	return f.namespaces, nil
}

func (f *fakeInstallClient) ListAgentPods(context.Context, string, string) ([]PodInfo, error) {
	return f.pods, nil
}

func defaultInstallOptions() InstallOptions {
	return InstallOptions{
		Namespace:      "agentcraft",
		RequiredCRDs:   []string{"agents.craft.io"},
		ControllerName: "agentcraft-controller",
		Retries:        3,
		Backoff:        time.Millisecond,
	}
}

func TestVerifyInstallationRetriesTransientFailures(t *testing.T) {
	client := &fakeInstallClient{
		crdResults: [][]string{nil, {"agents.craft.io"}},
		crdErrs:    []error{xerrors.New(xerrors.CodeRuntimeAPI, "apiserver flaking"), nil},
		namespaces: []string{"agentcraft"},
		pods:       []PodInfo{{Name: "ctrl-0", Phase: PhaseRunning, Ready: true}},
	}

	if err := VerifyInstallation(context.Background(), client, defaultInstallOptions()); err != nil {
		t.Fatalf("transient failure should be retried: %v", err)
	}
	if client.calls < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", client.calls)
	}
}

func TestVerifyInstallationPermanentFailureIsImmediate(t *testing.T) {
	client := &fakeInstallClient{
		crdResults: [][]string{{}},
		crdErrs:    []error{nil},
		namespaces: []string{"agentcraft"},
	}

	err := VerifyInstallation(context.Background(), client, defaultInstallOptions())
	if err == nil {
		t.Fatalf("expected error for missing CRD")
	}
	if xerrors.CodeOf(err) != xerrors.CodeNotInitialized {
		t.Fatalf("expected NOT_INITIALIZED, got %s", xerrors.CodeOf(err))
	}
	// 确定性缺失不应重试。
	if client.calls != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", client.calls)
	}
}

func TestVerifyInstallationExhaustsRetries(t *testing.T) {
	client := &fakeInstallClient{
		crdResults: [][]string{nil},
		crdErrs:    []error{xerrors.New(xerrors.CodeRuntimeAPI, "always failing")},
		namespaces: []string{"agentcraft"},
	}

	err := VerifyInstallation(context.Background(), client, defaultInstallOptions())
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if xerrors.CodeOf(err) != xerrors.CodeNotInitialized {
		t.Fatalf("exhausted retries should surface NOT_INITIALIZED, got %s", xerrors.CodeOf(err))
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", client.calls)
	}
}

func TestVerifyInstallationControllerNotRunning(t *testing.T) {
	client := &fakeInstallClient{
		crdResults: [][]string{{"agents.craft.io"}},
		crdErrs:    []error{nil},
		namespaces: []string{"agentcraft"},
		pods:       []PodInfo{{Name: "ctrl-0", Phase: PhasePending}},
	}

	opts := defaultInstallOptions()
	opts.Retries = 2

	err := VerifyInstallation(context.Background(), client, opts)
	if err == nil {
		t.Fatalf("expected error when controller is not running")
	}
}
