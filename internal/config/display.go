package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DisplayNames 接收端显示名称配置（app_config.json），加载后只读
//
// 格式:
//
//	{"origins": {"<origin>": {"displayName": "...", "keys": {"<field>": "..."}}}}
type DisplayNames struct {
	Origins map[string]OriginDisplay `yaml:"origins" json:"origins"`
}

// OriginDisplay 单个 origin 的显示名称及字段显示名称
type OriginDisplay struct {
	DisplayName string            `yaml:"displayName" json:"displayName"`
	Keys        map[string]string `yaml:"keys" json:"keys"`
}

// LoadDisplayNames 加载显示名称配置（JSON 按 YAML 解析）
func LoadDisplayNames(path string) (*DisplayNames, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receiver config %s: %w", path, err)
	}

	var names DisplayNames
	if err := yaml.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("failed to parse receiver config %s: %w", path, err)
	}
	return &names, nil
}

// Origin 返回 origin 的显示名称，未配置时返回原始名称
func (d *DisplayNames) Origin(origin string) string {
	if d == nil {
		return origin
	}
	if o, ok := d.Origins[origin]; ok && o.DisplayName != "" {
		return o.DisplayName
	}
	return origin
}

// Field 返回字段的显示名称，未配置时返回原始名称
func (d *DisplayNames) Field(origin, field string) string {
	if d == nil {
		return field
	}
	if name, ok := d.Origins[origin].Keys[field]; ok && name != "" {
		return name
	}
	return field
}
