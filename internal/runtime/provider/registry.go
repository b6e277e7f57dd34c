package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"AgentCraft/internal/config"
	"AgentCraft/internal/runtime"
	"AgentCraft/internal/runtime/kubernetes"
	"AgentCraft/internal/runtime/memory"
)

// Registry manages a set of runtime clients keyed by human readable names.
type Registry struct {
	defaultCluster string
	clients        map[string]runtime.Client
}

// NewRegistry loads cluster definitions and instantiates concrete clients.
// When the driver is "memory" a single pre-provisioned fake is returned,
// which keeps local development independent of any real cluster.
func NewRegistry(cfg config.RuntimeConfig) (*Registry, error) {
	if strings.EqualFold(cfg.Driver, "memory") {
		client := memory.NewClient(
			memory.WithNamespaces(cfg.Namespace),
			memory.WithCRDs(cfg.Install.RequiredCRDs...),
			memory.WithWorkload(cfg.Install.ControllerName),
		)
		return &Registry{
			defaultCluster: "memory",
			clients:        map[string]runtime.Client{"memory": client},
		}, nil
	}

	defs, err := runtime.LoadClusterDefinitions(cfg.ClusterConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]runtime.Client)
	for name, cluster := range defs.Clusters {
		clusterType := strings.ToLower(strings.TrimSpace(cluster.Type))
		if clusterType == "" {
			clusterType = "kubernetes"
		}
		switch clusterType {
		case "kubernetes":
			client, err := kubernetes.NewClient(kubernetes.Config{
				Name:               name,
				APIServer:          cluster.APIServer,
				BearerToken:        cluster.BearerToken,
				BearerTokenFile:    cluster.BearerTokenFile,
				CAFile:             cluster.CAFile,
				InsecureSkipVerify: cluster.InsecureSkipVerify,
				CallTimeout:        time.Duration(cfg.CallTimeoutSeconds) * time.Second,
				Notes:              cluster.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化集群 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			return nil, fmt.Errorf("集群 %s 使用了不支持的类型 %s", name, cluster.Type)
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何集群端点")
	}

	defaultCluster := cfg.DefaultCluster
	if defaultCluster == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultCluster = names[0]
	}
	if _, ok := clients[defaultCluster]; !ok {
		return nil, fmt.Errorf("默认集群 %s 未在配置中找到", defaultCluster)
	}

	return &Registry{defaultCluster: defaultCluster, clients: clients}, nil
}

// DefaultClient returns the client configured as default cluster.
func (r *Registry) DefaultClient() (runtime.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的运行时客户端注册表")
	}
	client, ok := r.clients[r.defaultCluster]
	if !ok {
		return nil, fmt.Errorf("默认集群 %s 未在注册表中", r.defaultCluster)
	}
	return client, nil
}

// Client returns the runtime client identified by name.
func (r *Registry) Client(name string) (runtime.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Clusters returns the list of registered cluster names.
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}
