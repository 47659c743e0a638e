package config

import (
	"fmt"
	"os"

	"github.com/BerniceZTT/dialer_end/models"

	"gopkg.in/yaml.v3"
)

// LoadCatalog 读取自定义优先级、阶段与类别。path为空时返回默认目录。
func LoadCatalog(path string) (*models.Catalog, error) {
	if path == "" {
		return models.DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取目录文件失败: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog 解析yaml格式的目录
func ParseCatalog(data []byte) (*models.Catalog, error) {
	var catalog models.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("解析目录文件失败: %w", err)
	}

	seen := make(map[string]bool)
	for _, tier := range catalog.Tiers {
		if tier == "" {
			return nil, fmt.Errorf("优先级名称不能为空")
		}
		if seen[tier] {
			return nil, fmt.Errorf("优先级重复: %s", tier)
		}
		seen[tier] = true
	}
	for _, stage := range catalog.Stages {
		if stage == "" {
			return nil, fmt.Errorf("阶段名称不能为空")
		}
	}
	return &catalog, nil
}
