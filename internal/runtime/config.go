package runtime

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClusterDefinitions models the structure of configs/clusters.yaml.
type ClusterDefinitions struct {
	Clusters map[string]ClusterDefinition `yaml:"clusters"`
}

// ClusterDefinition describes a single orchestration cluster endpoint.
type ClusterDefinition struct {
	Type               string `yaml:"type"`
	APIServer          string `yaml:"api_server"`
	BearerToken        string `yaml:"bearer_token"`
	BearerTokenFile    string `yaml:"bearer_token_file"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Description        string `yaml:"description"`
}

// LoadClusterDefinitions parses the YAML file containing cluster metadata.
func LoadClusterDefinitions(path string) (ClusterDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ClusterDefinitions{Clusters: map[string]ClusterDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ClusterDefinitions{}, fmt.Errorf("读取集群配置失败: %w", err)
	}

	var defs ClusterDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ClusterDefinitions{}, fmt.Errorf("解析集群配置失败: %w", err)
	}
	if defs.Clusters == nil {
		defs.Clusters = map[string]ClusterDefinition{}
	}
	return defs, nil
}
