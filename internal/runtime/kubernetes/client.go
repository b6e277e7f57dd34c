package kubernetes

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/runtime"
)

const (
	// apiGroup is the group/version under which the agent CRDs are served.
	apiGroup = "craft.io/v1"

	defaultCallTimeout = 15 * time.Second
)

// Config describes how to reach a cluster's apiserver.
type Config struct {
	Name               string
	APIServer          string
	BearerToken        string
	BearerTokenFile    string
	CAFile             string
	InsecureSkipVerify bool
	CallTimeout        time.Duration
	Notes              string
}

// Client implements the runtime.Client interface against the Kubernetes
// REST API. Every outbound call is bounded by a fixed per-call timeout;
// there is no whole-operation deadline.
type Client struct {
	name        string
	baseURL     *url.URL
	token       string
	httpClient  *http.Client
	callTimeout time.Duration
}

// NewClient validates the endpoint configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	server := strings.TrimSpace(cfg.APIServer)
	if server == "" {
		return nil, errors.New("未配置 apiserver 地址")
	}
	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("解析 apiserver 地址失败: %w", err)
	}

	token := strings.TrimSpace(cfg.BearerToken)
	if token == "" && cfg.BearerTokenFile != "" {
		raw, err := os.ReadFile(cfg.BearerTokenFile)
		if err != nil {
			return nil, fmt.Errorf("读取 bearer token 文件失败: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("读取 CA 证书失败: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("CA 证书格式无效")
		}
		tlsConfig.RootCAs = pool
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &Client{
		name:    cfg.Name,
		baseURL: base,
		token:   token,
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		callTimeout: callTimeout,
	}, nil
}

// objectMeta mirrors the metadata section of a Kubernetes object.
type objectMeta struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type agentObject struct {
	APIVersion string     `json:"apiVersion,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Metadata   objectMeta `json:"metadata"`
	Spec       struct {
		Description string   `json:"description,omitempty"`
		Tools       []string `json:"tools,omitempty"`
	} `json:"spec"`
	Status struct {
		Phase string `json:"phase,omitempty"`
	} `json:"status,omitempty"`
}

type toolObject struct {
	APIVersion string     `json:"apiVersion,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Metadata   objectMeta `json:"metadata"`
	Spec       struct {
		Description    string   `json:"description,omitempty"`
		Endpoint       string   `json:"endpoint,omitempty"`
		TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`
		Capabilities   []string `json:"capabilities,omitempty"`
	} `json:"spec"`
	Status struct {
		Phase string `json:"phase,omitempty"`
	} `json:"status,omitempty"`
}

type objectList[T any] struct {
	Items []T `json:"items"`
}

type podObject struct {
	Metadata objectMeta `json:"metadata"`
	Status   struct {
		Phase             string `json:"phase,omitempty"`
		ContainerStatuses []struct {
			Ready bool `json:"ready"`
		} `json:"containerStatuses,omitempty"`
	} `json:"status,omitempty"`
}

type namedList struct {
	Items []struct {
		Metadata objectMeta `json:"metadata"`
	} `json:"items"`
}

func agentsPath(namespace string) string {
	return fmt.Sprintf("/apis/%s/namespaces/%s/agents", apiGroup, namespace)
}

func toolsPath(namespace string) string {
	return fmt.Sprintf("/apis/%s/namespaces/%s/tools", apiGroup, namespace)
}

// CreateAgent submits an agent custom resource.
func (c *Client) CreateAgent(ctx context.Context, agent runtime.AgentResource) error {
	obj := agentObject{APIVersion: apiGroup, Kind: "Agent"}
	obj.Metadata = objectMeta{Name: agent.Name, Namespace: agent.Namespace, Labels: agent.Labels}
	obj.Spec.Description = agent.Description
	obj.Spec.Tools = agent.Tools
	return c.do(ctx, http.MethodPost, agentsPath(agent.Namespace), obj, nil)
}

// GetAgent fetches a single agent resource with its live phase.
func (c *Client) GetAgent(ctx context.Context, namespace, name string) (*runtime.AgentResource, error) {
	var obj agentObject
	if err := c.do(ctx, http.MethodGet, agentsPath(namespace)+"/"+name, nil, &obj); err != nil {
		return nil, err
	}
	agent := decodeAgent(obj)
	return &agent, nil
}

// DeleteAgent removes an agent resource.
func (c *Client) DeleteAgent(ctx context.Context, namespace, name string) error {
	return c.do(ctx, http.MethodDelete, agentsPath(namespace)+"/"+name, nil, nil)
}

// ListAgents returns all agent resources in the namespace.
func (c *Client) ListAgents(ctx context.Context, namespace string) ([]runtime.AgentResource, error) {
	var list objectList[agentObject]
	if err := c.do(ctx, http.MethodGet, agentsPath(namespace), nil, &list); err != nil {
		return nil, err
	}
	agents := make([]runtime.AgentResource, 0, len(list.Items))
	for _, item := range list.Items {
		agents = append(agents, decodeAgent(item))
	}
	return agents, nil
}

// CreateTool submits a tool custom resource.
func (c *Client) CreateTool(ctx context.Context, tool runtime.ToolResource) error {
	obj := toolObject{APIVersion: apiGroup, Kind: "Tool"}
	obj.Metadata = objectMeta{Name: tool.Name, Namespace: tool.Namespace, Labels: tool.Labels}
	obj.Spec.Description = tool.Description
	obj.Spec.Endpoint = tool.Endpoint
	obj.Spec.TimeoutSeconds = tool.TimeoutSeconds
	obj.Spec.Capabilities = tool.Capabilities
	return c.do(ctx, http.MethodPost, toolsPath(tool.Namespace), obj, nil)
}

// GetTool fetches a single tool resource.
func (c *Client) GetTool(ctx context.Context, namespace, name string) (*runtime.ToolResource, error) {
	var obj toolObject
	if err := c.do(ctx, http.MethodGet, toolsPath(namespace)+"/"+name, nil, &obj); err != nil {
		return nil, err
	}
	tool := decodeTool(obj)
	return &tool, nil
}

// DeleteTool removes a tool resource.
func (c *Client) DeleteTool(ctx context.Context, namespace, name string) error {
	return c.do(ctx, http.MethodDelete, toolsPath(namespace)+"/"+name, nil, nil)
}

// ListTools returns all tool resources in the namespace.
func (c *Client) ListTools(ctx context.Context, namespace string) ([]runtime.ToolResource, error) {
	var list objectList[toolObject]
	if err := c.do(ctx, http.MethodGet, toolsPath(namespace), nil, &list); err != nil {
		return nil, err
	}
	tools := make([]runtime.ToolResource, 0, len(list.Items))
	for _, item := range list.Items {
		tools = append(tools, decodeTool(item))
	}
	return tools, nil
}

// ListAgentPods returns the workload pods labelled for the given agent.
func (c *Client) ListAgentPods(ctx context.Context, namespace, agentName string) ([]runtime.PodInfo, error) {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods?labelSelector=%s",
		namespace, url.QueryEscape("app="+agentName))
	var list objectList[podObject]
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	pods := make([]runtime.PodInfo, 0, len(list.Items))
	for _, item := range list.Items {
		ready := len(item.Status.ContainerStatuses) > 0
		for _, status := range item.Status.ContainerStatuses {
			if !status.Ready {
				ready = false
				break
			}
		}
		pods = append(pods, runtime.PodInfo{
			Name:  item.Metadata.Name,
			Phase: parsePhase(item.Status.Phase),
			Ready: ready,
		})
	}
	return pods, nil
}

// ListNamespaces returns the names of all namespaces in the cluster.
func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	var list namedList
	if err := c.do(ctx, http.MethodGet, "/api/v1/namespaces", nil, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		names = append(names, item.Metadata.Name)
	}
	return names, nil
}

// ListCRDs returns the names of all custom resource definitions.
func (c *Client) ListCRDs(ctx context.Context) ([]string, error) {
	var list namedList
	if err := c.do(ctx, http.MethodGet, "/apis/apiextensions.k8s.io/v1/customresourcedefinitions", nil, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		names = append(names, item.Metadata.Name)
	}
	return names, nil
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// do performs a single bounded REST call against the apiserver.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "序列化请求体失败")
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.baseURL.String(), "/") + path
	req, err := http.NewRequestWithContext(callCtx, method, endpoint, reader)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "构造运行时请求失败")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "运行时调用超时")
		}
		return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "运行时调用失败")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "读取运行时响应失败")
	}

	if resp.StatusCode == http.StatusNotFound {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("%s %s 返回 404", method, path))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.New(xerrors.CodeRuntimeAPI,
			fmt.Sprintf("%s %s 返回 %d", method, path, resp.StatusCode),
			xerrors.WithMetadata("status", fmt.Sprintf("%d", resp.StatusCode)),
			xerrors.WithMetadata("payload", string(payload)),
		)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "解析运行时响应失败")
		}
	}
	return nil
}

func decodeAgent(obj agentObject) runtime.AgentResource {
	return runtime.AgentResource{
		Name:        obj.Metadata.Name,
		Namespace:   obj.Metadata.Namespace,
		Description: obj.Spec.Description,
		Tools:       obj.Spec.Tools,
		Labels:      obj.Metadata.Labels,
		Phase:       parsePhase(obj.Status.Phase),
	}
}

func decodeTool(obj toolObject) runtime.ToolResource {
	return runtime.ToolResource{
		Name:           obj.Metadata.Name,
		Namespace:      obj.Metadata.Namespace,
		Description:    obj.Spec.Description,
		Endpoint:       obj.Spec.Endpoint,
		TimeoutSeconds: obj.Spec.TimeoutSeconds,
		Capabilities:   obj.Spec.Capabilities,
		Labels:         obj.Metadata.Labels,
		Phase:          parsePhase(obj.Status.Phase),
	}
}

func parsePhase(raw string) runtime.Phase {
	switch raw {
	case string(runtime.PhasePending):
		return runtime.PhasePending
	case string(runtime.PhaseRunning):
		return runtime.PhaseRunning
	case string(runtime.PhaseFailed):
		return runtime.PhaseFailed
	case "":
		return runtime.PhaseUnknown
	default:
		return runtime.Phase(raw)
	}
}
