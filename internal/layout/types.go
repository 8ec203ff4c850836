package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind 是元素的类型判别字段，集合封闭。
type Kind string

const (
	KindTextField    Kind = "text_field"
	KindStaticText   Kind = "static_text"
	KindLine         Kind = "line"
	KindVerticalLine Kind = "vertical_line"
	KindRectangle    Kind = "rectangle"
	KindCircle       Kind = "circle"
	KindImage        Kind = "image"
)

// Kinds 按编辑器工具栏顺序列出全部元素类型。
var Kinds = []Kind{
	KindTextField,
	KindStaticText,
	KindLine,
	KindVerticalLine,
	KindRectangle,
	KindCircle,
	KindImage,
}

func (k Kind) Valid() bool {
	switch k {
	case KindTextField, KindStaticText, KindLine, KindVerticalLine, KindRectangle, KindCircle, KindImage:
		return true
	}
	return false
}

// IsText 表示该类型携带文字样式。
func (k Kind) IsText() bool {
	return k == KindTextField || k == KindStaticText
}

// IsShape 表示该类型携带填充/边框样式（直线只使用背景色作为描边色）。
func (k Kind) IsShape() bool {
	switch k {
	case KindRectangle, KindCircle, KindLine, KindVerticalLine:
		return true
	}
	return false
}

// IsLine 表示退化的一维图形。
func (k Kind) IsLine() bool {
	return k == KindLine || k == KindVerticalLine
}

// ParseKind 校验外部输入的元素类型。
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.TrimSpace(raw))
	if !k.Valid() {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown element type %q", raw)}
	}
	return k, nil
}

// TemplateType 描述模板对应的单据类型。
type TemplateType string

const (
	TemplateSendTransfer      TemplateType = "send_transfer"
	TemplateReceiveTransfer   TemplateType = "receive_transfer"
	TemplateCommissionReceipt TemplateType = "commission_receipt"
	TemplateAccountStatement  TemplateType = "account_statement"
	TemplateDepositReceipt    TemplateType = "deposit_receipt"
	TemplateReceipt           TemplateType = "receipt"
)

// TemplateTypes 列出模板可绑定的全部单据类型。
var TemplateTypes = []TemplateType{
	TemplateSendTransfer,
	TemplateReceiveTransfer,
	TemplateCommissionReceipt,
	TemplateAccountStatement,
	TemplateDepositReceipt,
	TemplateReceipt,
}

func (t TemplateType) Valid() bool {
	for _, known := range TemplateTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTemplateType 校验单据类型。
func ParseTemplateType(raw string) (TemplateType, error) {
	t := TemplateType(strings.TrimSpace(raw))
	if !t.Valid() {
		return "", &ValidationError{Field: "templateType", Reason: fmt.Sprintf("unknown template type %q", raw)}
	}
	return t, nil
}

// PageSize 是页面尺寸的名称，具体宽高来自 Catalog。
type PageSize string

const (
	PageA4Portrait  PageSize = "a4_portrait"
	PageA4Landscape PageSize = "a4_landscape"
	PageA5Portrait  PageSize = "a5_portrait"
	PageA5Landscape PageSize = "a5_landscape"
	PageThermal80mm PageSize = "thermal_80mm"
)

// DefaultPageSize 是记录缺省页面尺寸时使用的值。
const DefaultPageSize = PageA4Portrait

// TextAlign 是逻辑对齐方式，默认按从右到左渲染。
type TextAlign string

const (
	AlignStart  TextAlign = "start"
	AlignCenter TextAlign = "center"
	AlignEnd    TextAlign = "end"
)

func (a TextAlign) Valid() bool {
	return a == AlignStart || a == AlignCenter || a == AlignEnd
}

// ParseTextAlign 接受逻辑值，以及旧版模板保存的 CSS 物理值（right/left，在 RTL 下分别对应 start/end）。
func ParseTextAlign(raw string) (TextAlign, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "start", "right":
		return AlignStart, nil
	case "center":
		return AlignCenter, nil
	case "end", "left":
		return AlignEnd, nil
	}
	return "", &ValidationError{Field: "textAlign", Reason: fmt.Sprintf("unknown alignment %q", raw)}
}

func (a *TextAlign) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("textAlign: %w", err)
	}
	parsed, err := ParseTextAlign(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// BorderStyle 是矩形/圆形的边框线型。
type BorderStyle string

const (
	BorderSolid  BorderStyle = "solid"
	BorderDashed BorderStyle = "dashed"
	BorderDotted BorderStyle = "dotted"
	BorderDouble BorderStyle = "double"
)

func (b BorderStyle) Valid() bool {
	switch b {
	case BorderSolid, BorderDashed, BorderDotted, BorderDouble:
		return true
	}
	return false
}

func (b *BorderStyle) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("borderStyle: %w", err)
	}
	style := BorderStyle(strings.ToLower(strings.TrimSpace(raw)))
	if !style.Valid() {
		return &ValidationError{Field: "borderStyle", Reason: fmt.Sprintf("unknown border style %q", raw)}
	}
	*b = style
	return nil
}

// FontWeight 为 100..900（步长 100）或 normal/bold。
// JSON 中数字形式与字符串形式均可。
type FontWeight string

const (
	WeightNormal FontWeight = "normal"
	WeightBold   FontWeight = "bold"
)

func (w FontWeight) Valid() bool {
	if w == WeightNormal || w == WeightBold {
		return true
	}
	n, err := strconv.Atoi(string(w))
	if err != nil {
		return false
	}
	return n >= 100 && n <= 900 && n%100 == 0
}

// Numeric 判断字重是否为 100..900 的数字形式。
func (w FontWeight) Numeric() bool {
	_, err := strconv.Atoi(string(w))
	return err == nil
}

func (w FontWeight) MarshalJSON() ([]byte, error) {
	if w.Numeric() {
		return []byte(w), nil
	}
	return json.Marshal(string(w))
}

func (w *FontWeight) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	var weight FontWeight
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("fontWeight: %w", err)
		}
		weight = FontWeight(strings.ToLower(strings.TrimSpace(raw)))
	} else {
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("fontWeight: %w", err)
		}
		weight = FontWeight(strconv.Itoa(int(n)))
	}
	if !weight.Valid() {
		return &ValidationError{Field: "fontWeight", Reason: fmt.Sprintf("unsupported weight %s", string(trimmed))}
	}
	*w = weight
	return nil
}

// TextStyle 是文字类元素（TextField、StaticText）的样式。
type TextStyle struct {
	FontFamily    string     `msgpack:"font_family"`
	FontSizePt    float64    `msgpack:"font_size_pt"`
	FontWeight    FontWeight `msgpack:"font_weight"`
	TextAlign     TextAlign  `msgpack:"text_align"`
	Color         string     `msgpack:"color"`
	LetterSpacing float64    `msgpack:"letter_spacing"`
}

// ShapeStyle 是图形类元素的样式。
type ShapeStyle struct {
	BackgroundColor string      `msgpack:"background_color"`
	BorderWidth     float64     `msgpack:"border_width"`
	BorderColor     string      `msgpack:"border_color"`
	BorderStyle     BorderStyle `msgpack:"border_style"`
}

// Transparent 表示无填充的背景值。
const Transparent = "transparent"

// Element 是画布上的一个定位单元。Text 只在文字类型上存在，Shape 只在图形类型上存在。
type Element struct {
	ID       string  `msgpack:"id"`
	Kind     Kind    `msgpack:"kind"`
	X        float64 `msgpack:"x"`
	Y        float64 `msgpack:"y"`
	Width    float64 `msgpack:"width"`
	Height   float64 `msgpack:"height"`
	Rotation float64 `msgpack:"rotation"`
	Opacity  float64 `msgpack:"opacity"`

	// FieldKey 仅用于 TextField，指向字段字典中的键。
	FieldKey string `msgpack:"field_key,omitempty"`
	// Content 仅用于 StaticText 的字面文本。
	Content string `msgpack:"content,omitempty"`
	// ImageURL 仅用于 Image，可为空。
	ImageURL string `msgpack:"image_url,omitempty"`

	Text  *TextStyle  `msgpack:"text,omitempty"`
	Shape *ShapeStyle `msgpack:"shape,omitempty"`
}

// Clone 深拷贝元素（样式指针不共享）。
func (e Element) Clone() Element {
	out := e
	if e.Text != nil {
		text := *e.Text
		out.Text = &text
	}
	if e.Shape != nil {
		shape := *e.Shape
		out.Shape = &shape
	}
	return out
}

// Template 是编辑会话中保存的模板状态。元素顺序即绘制顺序。
type Template struct {
	Name         string       `msgpack:"name"`
	TemplateType TemplateType `msgpack:"template_type"`
	PageSize     PageSize     `msgpack:"page_size"`
	Elements     []Element    `msgpack:"elements"`
	IsActive     bool         `msgpack:"is_active"`
}

// Clone 返回模板的深拷贝。
func (t Template) Clone() Template {
	out := t
	out.Elements = cloneElements(t.Elements)
	return out
}

func cloneElements(elements []Element) []Element {
	out := make([]Element, len(elements))
	for i, el := range elements {
		out[i] = el.Clone()
	}
	return out
}

// Validate 在保存前检查模板的完整性。字段键不做校验：未知键在预览中回退为原始占位符。
func (t Template) Validate(catalog *Catalog) error {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if !t.TemplateType.Valid() {
		return &ValidationError{Field: "templateType", Reason: fmt.Sprintf("unknown template type %q", t.TemplateType)}
	}
	if _, ok := catalog.Dimensions(t.PageSize); !ok {
		return &ValidationError{Field: "pageSize", Reason: fmt.Sprintf("unknown page size %q", t.PageSize)}
	}
	seen := make(map[string]struct{}, len(t.Elements))
	for i, el := range t.Elements {
		if !el.Kind.Valid() {
			return &ValidationError{Field: fmt.Sprintf("elements[%d].type", i), Reason: fmt.Sprintf("unknown element type %q", el.Kind)}
		}
		if el.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("elements[%d].id", i), Reason: "id is required"}
		}
		if _, dup := seen[el.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("elements[%d].id", i), Reason: fmt.Sprintf("duplicate id %q", el.ID)}
		}
		seen[el.ID] = struct{}{}
		if el.Width < MinSize || el.Height < MinSize {
			return &ValidationError{Field: fmt.Sprintf("elements[%d]", i), Reason: "width and height must be positive"}
		}
	}
	return nil
}
