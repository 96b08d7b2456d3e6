package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfig profiles 配置错误（缺失文件、格式错误、循环导入），启动时致命
var ErrConfig = errors.New("invalid profiles config")

// importsKey 顶层保留键，值为被导入配置文件列表（相对于当前文件所在目录）
const importsKey = "imports"

// Entry 一条配置项：origin.field 在 profile 中的元数据
type Entry struct {
	Origin  string
	Field   string
	Profile string
	Info    map[string]any
}

// Key 实体键 origin.field
func (e Entry) Key() string {
	return EntityKey(e.Origin, e.Field)
}

// EntityKey 实体键 origin.field
func EntityKey(origin, field string) string {
	return origin + "." + field
}

// LoadConfig 加载 profiles 配置及其全部导入，导入内容先于本文件合并
//
// 格式（JSON 或 YAML）:
//
//	{"imports": ["common.json"], "<origin>": {"<field>": {"<profile>": {...metadata}}}}
//
// 自导入、循环导入或缺失文件返回 ErrConfig，不会部分成功
func LoadConfig(path string) ([]Entry, error) {
	l := &loader{
		visiting: make(map[string]bool),
		loaded:   make(map[string]bool),
	}
	if err := l.load(path); err != nil {
		return nil, err
	}
	return l.entries, nil
}

type loader struct {
	visiting map[string]bool
	loaded   map[string]bool
	entries  []Entry
}

func (l *loader) load(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrConfig, path, err)
	}
	if l.visiting[abs] {
		return fmt.Errorf("%w: import cycle through %s", ErrConfig, path)
	}
	if l.loaded[abs] {
		return nil
	}
	l.visiting[abs] = true
	defer delete(l.visiting, abs)

	raw, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		l.loaded[abs] = true
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s: top level must be a mapping", ErrConfig, path)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != importsKey {
			continue
		}
		imports, err := decodeImports(root.Content[i+1])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
		}
		dir := filepath.Dir(abs)
		for _, imp := range imports {
			if !filepath.IsAbs(imp) {
				imp = filepath.Join(dir, imp)
			}
			if err := l.load(imp); err != nil {
				return err
			}
		}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		origin := root.Content[i].Value
		if origin == importsKey {
			continue
		}
		if err := l.addOrigin(path, origin, root.Content[i+1]); err != nil {
			return err
		}
	}

	l.loaded[abs] = true
	return nil
}

func (l *loader) addOrigin(path, origin string, fields *yaml.Node) error {
	if fields.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s: origin %s must map fields to profiles", ErrConfig, path, origin)
	}
	for i := 0; i+1 < len(fields.Content); i += 2 {
		field := fields.Content[i].Value
		profiles := fields.Content[i+1]
		if profiles.Kind != yaml.MappingNode {
			return fmt.Errorf("%w: %s: key %s in origin %s must map profiles to metadata", ErrConfig, path, field, origin)
		}
		for j := 0; j+1 < len(profiles.Content); j += 2 {
			name := profiles.Content[j].Value
			infoNode := profiles.Content[j+1]
			if infoNode.Kind != yaml.MappingNode {
				return fmt.Errorf("%w: %s: profile %s key %s origin %s must be a mapping", ErrConfig, path, name, field, origin)
			}
			info := make(map[string]any)
			if err := infoNode.Decode(&info); err != nil {
				return fmt.Errorf("%w: %s: profile %s: %v", ErrConfig, path, name, err)
			}
			l.entries = append(l.entries, Entry{Origin: origin, Field: field, Profile: name, Info: info})
		}
	}
	return nil
}

func decodeImports(node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, errors.New("imports must be a list of paths")
	}
	out := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode || item.Value == "" {
			return nil, errors.New("imports must be a list of paths")
		}
		out = append(out, item.Value)
	}
	return out, nil
}
