package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 AgentCraft 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Runtime   RuntimeConfig   `json:"runtime"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	Discovery DiscoveryConfig `json:"discovery"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// RuntimeConfig 描述目标容器编排运行时的接入方式。
type RuntimeConfig struct {
	Driver             string        `json:"driver"`
	ClusterConfig      string        `json:"cluster_config"`
	DefaultCluster     string        `json:"default_cluster"`
	Namespace          string        `json:"namespace"`
	CallTimeoutSeconds int           `json:"call_timeout_seconds"`
	Install            InstallConfig `json:"install"`
}

// InstallConfig 控制启动时的安装校验行为。
type InstallConfig struct {
	Retries        int      `json:"retries"`
	BackoffSeconds int      `json:"backoff_seconds"`
	RequiredCRDs   []string `json:"required_crds"`
	ControllerName string   `json:"controller_name"`
}

// TaskQueueConfig 描述任务队列的驱动与连接参数。
type TaskQueueConfig struct {
	Driver          string         `json:"driver"`
	Worker          int            `json:"worker"`
	DeadlineSeconds int            `json:"deadline_seconds"`
	Redis           RedisConfig    `json:"redis"`
	RabbitMQ        RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接信息。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接信息。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// DiscoveryConfig 控制平台工具目录的周期性发现。
type DiscoveryConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// LoggingConfig 控制结构化日志与审计日志输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       struct {
		Enabled    bool   `json:"enabled"`
		Path       string `json:"path"`
		MaxSizeMB  int    `json:"max_size_mb"`
		MaxBackups int    `json:"max_backups"`
		MaxAgeDays int    `json:"max_age_days"`
	} `json:"audit"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Runtime.Driver == "" {
		c.Runtime.Driver = "memory"
	}
	if c.Runtime.Namespace == "" {
		c.Runtime.Namespace = "agentcraft"
	}
	if c.Runtime.CallTimeoutSeconds <= 0 {
		c.Runtime.CallTimeoutSeconds = 15
	}
	if c.Runtime.ClusterConfig != "" && !filepath.IsAbs(c.Runtime.ClusterConfig) {
		c.Runtime.ClusterConfig = filepath.Join(baseDir, c.Runtime.ClusterConfig)
	}
	if c.Runtime.Install.Retries <= 0 {
		c.Runtime.Install.Retries = 5
	}
	if c.Runtime.Install.BackoffSeconds <= 0 {
		c.Runtime.Install.BackoffSeconds = 2
	}
	if len(c.Runtime.Install.RequiredCRDs) == 0 {
		c.Runtime.Install.RequiredCRDs = []string{
			"agents.craft.io",
			"tools.craft.io",
		}
	}
	if c.Runtime.Install.ControllerName == "" {
		c.Runtime.Install.ControllerName = "agentcraft-controller"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Worker <= 0 {
		c.TaskQueue.Worker = 4
	}
	if c.TaskQueue.DeadlineSeconds <= 0 {
		c.TaskQueue.DeadlineSeconds = 300
	}

	if c.Discovery.IntervalSeconds <= 0 {
		c.Discovery.IntervalSeconds = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
