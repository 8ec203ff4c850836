package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Dimensions 是页面宽高（布局单位）。
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageSizeDef 描述一种具名页面尺寸。
type PageSizeDef struct {
	Name   PageSize `yaml:"name" json:"name"`
	Label  string   `yaml:"label" json:"label"`
	Width  float64  `yaml:"width" json:"width"`
	Height float64  `yaml:"height" json:"height"`
}

// FieldDef 是字段字典中的一项，仅用于选择器与示例数据。
type FieldDef struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

type catalogFile struct {
	PageSizes []PageSizeDef `yaml:"page_sizes"`
	Fields    []FieldDef    `yaml:"fields"`
}

// Catalog 保存页面尺寸与字段字典，属于配置而非逻辑。
type Catalog struct {
	pageOrder []PageSize
	pageSizes map[PageSize]PageSizeDef
	fields    []FieldDef
	labels    map[string]string
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog 返回内置的目录；内置 YAML 无法解析属于构建错误，直接 panic。
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Errorf("parse embedded catalog: %w", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// LoadCatalog 读取目录文件；路径为空时使用内置默认目录。
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog 解析 YAML 目录并校验尺寸为正、键不重复。
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.PageSizes) == 0 {
		return nil, errors.New("catalog defines no page sizes")
	}

	c := &Catalog{
		pageSizes: make(map[PageSize]PageSizeDef, len(file.PageSizes)),
		labels:    make(map[string]string, len(file.Fields)),
	}
	for _, p := range file.PageSizes {
		if p.Name == "" {
			return nil, errors.New("page size name is required")
		}
		if p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("page size %q must have positive dimensions", p.Name)
		}
		if _, dup := c.pageSizes[p.Name]; dup {
			return nil, fmt.Errorf("duplicate page size %q", p.Name)
		}
		c.pageSizes[p.Name] = p
		c.pageOrder = append(c.pageOrder, p.Name)
	}
	for _, f := range file.Fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return nil, errors.New("field key is required")
		}
		if _, dup := c.labels[key]; dup {
			return nil, fmt.Errorf("duplicate field key %q", key)
		}
		f.Key = key
		c.labels[key] = f.Label
		c.fields = append(c.fields, f)
	}
	return c, nil
}

// Dimensions 查询页面尺寸。
func (c *Catalog) Dimensions(p PageSize) (Dimensions, bool) {
	def, ok := c.pageSizes[p]
	if !ok {
		return Dimensions{}, false
	}
	return Dimensions{Width: def.Width, Height: def.Height}, true
}

// PageSizes 按配置顺序返回全部页面尺寸。
func (c *Catalog) PageSizes() []PageSizeDef {
	out := make([]PageSizeDef, 0, len(c.pageOrder))
	for _, name := range c.pageOrder {
		out = append(out, c.pageSizes[name])
	}
	return out
}

// Fields 返回字段字典的副本。
func (c *Catalog) Fields() []FieldDef {
	out := make([]FieldDef, len(c.fields))
	copy(out, c.fields)
	return out
}

// HasField 判断 key 是否在字段字典中。
func (c *Catalog) HasField(key string) bool {
	_, ok := c.labels[key]
	return ok
}

// Label 返回字段的可读名称，未知键回退为键本身。
func (c *Catalog) Label(key string) string {
	if label, ok := c.labels[key]; ok && label != "" {
		return label
	}
	return key
}

// DefaultFieldKey 是新建 TextField 未指定键时使用的字段。
func (c *Catalog) DefaultFieldKey() string {
	if len(c.fields) == 0 {
		return ""
	}
	return c.fields[0].Key
}

// SampleData 以字段名称作为示例值，用于生成缩略图。
func (c *Catalog) SampleData() map[string]string {
	out := make(map[string]string, len(c.fields))
	for _, f := range c.fields {
		out[f.Key] = c.Label(f.Key)
	}
	return out
}
