package layout

import (
	"fmt"

	"github.com/google/uuid"
)

// Direction 是层级调整方向。
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection 校验层级调整方向。
func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(raw); d {
	case Forward, Backward:
		return d, nil
	}
	return "", &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", raw)}
}

// EditorSession 持有单个操作员会话中的模板状态。
// 所有操作同步执行；以元素 ID 寻址的操作在 ID 不存在时为空操作，并通过返回值告知调用方。
// 元素切片的顺序即绘制顺序，所有变更都维持这一点。
type EditorSession struct {
	template Template
	selected string
	catalog  *Catalog
	newID    func() string
}

// Option 用于定制会话。
type Option func(*EditorSession)

// WithIDGenerator 替换元素 ID 生成器（测试中使用确定的序列）。
func WithIDGenerator(fn func() string) Option {
	return func(s *EditorSession) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCatalog 设置页面尺寸与字段目录。
func WithCatalog(c *Catalog) Option {
	return func(s *EditorSession) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithSelection 恢复快照中的选中元素。
func WithSelection(id string) Option {
	return func(s *EditorSession) {
		s.selected = id
	}
}

// NewEditorSession 以给定模板创建会话；模板中的元素会被规范化。
func NewEditorSession(tmpl Template, opts ...Option) *EditorSession {
	s := &EditorSession{
		catalog: DefaultCatalog(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if tmpl.PageSize == "" {
		tmpl.PageSize = DefaultPageSize
	}
	s.template = tmpl.Clone()
	s.template.Elements = s.normalizeAll(s.template.Elements)
	if s.indexOf(s.selected) < 0 {
		s.selected = ""
	}
	return s
}

// Catalog 返回会话排版所依据的目录。
func (s *EditorSession) Catalog() *Catalog {
	return s.catalog
}

// Template 返回当前模板的深拷贝。
func (s *EditorSession) Template() Template {
	return s.template.Clone()
}

// Elements 按绘制顺序返回元素序列的副本。
func (s *EditorSession) Elements() []Element {
	return cloneElements(s.template.Elements)
}

// Element 按 ID 查找元素。
func (s *EditorSession) Element(id string) (Element, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Element{}, false
	}
	return s.template.Elements[i].Clone(), true
}

// SelectedID 返回当前选中元素的 ID，未选中时为空。
func (s *EditorSession) SelectedID() string {
	return s.selected
}

// Selected 返回当前选中的元素（若有）。
func (s *EditorSession) Selected() (Element, bool) {
	if s.selected == "" {
		return Element{}, false
	}
	return s.Element(s.selected)
}

// Select 选中元素；空 ID 清除选中。ID 不存在时保持原状并返回 false。
func (s *EditorSession) Select(id string) bool {
	if id == "" {
		s.selected = ""
		return true
	}
	if s.indexOf(id) < 0 {
		return false
	}
	s.selected = id
	return true
}

// Rename 设置模板名称。
func (s *EditorSession) Rename(name string) {
	s.template.Name = name
}

// SetTemplateType 修改单据类型。
func (s *EditorSession) SetTemplateType(t TemplateType) error {
	if !t.Valid() {
		return &ValidationError{Field: "templateType", Reason: fmt.Sprintf("unknown template type %q", t)}
	}
	s.template.TemplateType = t
	return nil
}

// SetPageSize 修改页面尺寸；已有元素位置保持不变。
func (s *EditorSession) SetPageSize(p PageSize) error {
	if _, ok := s.catalog.Dimensions(p); !ok {
		return &ValidationError{Field: "pageSize", Reason: fmt.Sprintf("unknown page size %q", p)}
	}
	s.template.PageSize = p
	return nil
}

// SetActive 记录“设为当前模板”的意图；每种单据只能有一个启用模板的约束由持久化服务保证。
func (s *EditorSession) SetActive(active bool) {
	s.template.IsActive = active
}

// PageBounds 返回当前页面尺寸。
func (s *EditorSession) PageBounds() Dimensions {
	if d, ok := s.catalog.Dimensions(s.template.PageSize); ok {
		return d
	}
	d, _ := DefaultCatalog().Dimensions(DefaultPageSize)
	return d
}

// AddElement 以默认样式追加元素（位于最上层）并选中它。
// fieldKey 只对 TextField 生效，为空时取字段字典的第一项。
func (s *EditorSession) AddElement(kind Kind, fieldKey string) Element {
	el := DefaultElement(kind)
	el.ID = s.newID()
	if kind == KindTextField {
		if fieldKey == "" {
			fieldKey = s.catalog.DefaultFieldKey()
		}
		el.FieldKey = fieldKey
	}
	s.template.Elements = append(s.template.Elements, el)
	s.selected = el.ID
	return el.Clone()
}

// UpdateElement 浅合并补丁。
func (s *EditorSession) UpdateElement(id string, patch ElementPatch) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	patch.apply(&s.template.Elements[i])
	return true
}

// DeleteElement 删除元素；若它被选中则清除选中。重复删除为空操作。
func (s *EditorSession) DeleteElement(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.template.Elements = append(s.template.Elements[:i], s.template.Elements[i+1:]...)
	if s.selected == id {
		s.selected = ""
	}
	return true
}

// DuplicateElement 复制元素：新 ID，位置各偏移 DuplicateOffset，追加到最上层并选中副本。
func (s *EditorSession) DuplicateElement(id string) (Element, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Element{}, false
	}
	clone := s.template.Elements[i].Clone()
	clone.ID = s.newID()
	clone.X += DuplicateOffset
	clone.Y += DuplicateOffset
	s.template.Elements = append(s.template.Elements, clone)
	s.selected = clone.ID
	return clone.Clone(), true
}

// Reorder 与绘制顺序上的相邻元素交换；已在边界时为空操作。
func (s *EditorSession) Reorder(id string, dir Direction) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	j := i + 1
	if dir == Backward {
		j = i - 1
	}
	if j < 0 || j >= len(s.template.Elements) {
		return false
	}
	els := s.template.Elements
	els[i], els[j] = els[j], els[i]
	return true
}

// Nudge 移动元素后把它夹回页面内：x ∈ [0, pageWidth-width]，y ∈ [0, pageHeight-height]。
// 元素比页面更大时贴齐到 0。
func (s *EditorSession) Nudge(id string, dx, dy, pageWidth, pageHeight float64) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	el := &s.template.Elements[i]
	el.X = clamp(el.X+dx, 0, maxFloat(pageWidth-el.Width, 0))
	el.Y = clamp(el.Y+dy, 0, maxFloat(pageHeight-el.Height, 0))
	return true
}

// AlignAllToTop 把所有元素的 y 设为当前最小 y。
func (s *EditorSession) AlignAllToTop() {
	els := s.template.Elements
	if len(els) == 0 {
		return
	}
	top := els[0].Y
	for _, el := range els[1:] {
		if el.Y < top {
			top = el.Y
		}
	}
	for i := range els {
		els[i].Y = top
	}
}

// DistributeVertically 按顺序从 startY 开始纵向排列，间距为 gap。
func (s *EditorSession) DistributeVertically(startY, gap float64) {
	y := startY
	for i := range s.template.Elements {
		el := &s.template.Elements[i]
		el.Y = y
		y += el.Height + gap
	}
}

// DistributeHorizontally 是 DistributeVertically 的水平版本（作用于 x/width）。
func (s *EditorSession) DistributeHorizontally(startX, gap float64) {
	x := startX
	for i := range s.template.Elements {
		el := &s.template.Elements[i]
		el.X = x
		x += el.Width + gap
	}
}

// ClearAll 清空元素与选中状态。
func (s *EditorSession) ClearAll() {
	s.template.Elements = nil
	s.selected = ""
}

// Serialize 生成保存接口使用的记录。
func (s *EditorSession) Serialize() TemplateRecord {
	return TemplateRecord{
		Name:         s.template.Name,
		TemplateType: s.template.TemplateType,
		PageSize:     s.template.PageSize,
		Elements:     cloneElements(s.template.Elements),
		IsActive:     s.template.IsActive,
	}
}

// Deserialize 用记录替换当前模板。
// 未知类型的元素被跳过并在返回值中报告；模板类型或页面尺寸非法时返回 *ValidationError 且状态不变。
// 缺失的页面尺寸取 DefaultPageSize，空的或重复的元素 ID 会重新生成。
func (s *EditorSession) Deserialize(rec TemplateRecord) ([]SkippedElement, error) {
	if rec.TemplateType != "" && !rec.TemplateType.Valid() {
		return nil, &ValidationError{Field: "templateType", Reason: fmt.Sprintf("unknown template type %q", rec.TemplateType)}
	}
	pageSize := rec.PageSize
	if pageSize == "" {
		pageSize = DefaultPageSize
	}
	if _, ok := s.catalog.Dimensions(pageSize); !ok {
		return nil, &ValidationError{Field: "pageSize", Reason: fmt.Sprintf("unknown page size %q", rec.PageSize)}
	}

	skipped := append([]SkippedElement(nil), rec.Skipped()...)
	kept := make([]Element, 0, len(rec.Elements))
	for i, el := range rec.Elements {
		if !el.Kind.Valid() {
			skipped = append(skipped, SkippedElement{
				Index:  i,
				ID:     el.ID,
				Kind:   el.Kind,
				Reason: "unknown element type",
			})
			continue
		}
		kept = append(kept, el)
	}

	s.template = Template{
		Name:         rec.Name,
		TemplateType: rec.TemplateType,
		PageSize:     pageSize,
		Elements:     s.normalizeAll(kept),
		IsActive:     rec.IsActive,
	}
	s.selected = ""
	return skipped, nil
}

func (s *EditorSession) normalizeAll(elements []Element) []Element {
	out := make([]Element, 0, len(elements))
	seen := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		el = normalize(el)
		if _, dup := seen[el.ID]; el.ID == "" || dup {
			el.ID = s.newID()
		}
		seen[el.ID] = struct{}{}
		out = append(out, el)
	}
	return out
}

func (s *EditorSession) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.template.Elements {
		if s.template.Elements[i].ID == id {
			return i
		}
	}
	return -1
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
