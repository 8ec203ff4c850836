package layout

// DirectionRTL 是文字元素默认的书写方向。
const DirectionRTL = "rtl"

// DrawableBox 是一个样式与内容都已解析完毕、可直接绘制的元素。
type DrawableBox struct {
	ElementID string  `json:"elementId"`
	Kind      Kind    `json:"type"`
	ZIndex    int     `json:"zIndex"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Rotation  float64 `json:"rotation"`
	Opacity   float64 `json:"opacity"`

	Content   string `json:"content,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Direction string `json:"direction,omitempty"`

	FontFamily    string     `json:"fontFamily,omitempty"`
	FontSizePt    float64    `json:"fontSize,omitempty"`
	FontWeight    FontWeight `json:"fontWeight,omitempty"`
	TextAlign     TextAlign  `json:"textAlign,omitempty"`
	Color         string     `json:"color,omitempty"`
	LetterSpacing float64    `json:"letterSpacing,omitempty"`

	BackgroundColor string      `json:"backgroundColor,omitempty"`
	BorderWidth     float64     `json:"borderWidth,omitempty"`
	BorderColor     string      `json:"borderColor,omitempty"`
	BorderStyle     BorderStyle `json:"borderStyle,omitempty"`
}

// Placeholder 返回字段缺少示例数据时显示的占位符。
func Placeholder(fieldKey string) string {
	return "{{" + fieldKey + "}}"
}

// RenderPreview 按绘制顺序为每个元素生成 DrawableBox。
// TextField 取 sample[fieldKey]，缺失时为 {{fieldKey}}；StaticText 为字面文本；
// Image 只携带 imageUrl；线条与图形没有文字内容。
func (s *EditorSession) RenderPreview(sample map[string]string) []DrawableBox {
	return RenderBoxes(s.template.Elements, sample)
}

// RenderBoxes 与 RenderPreview 相同，但作用于任意元素序列。
func RenderBoxes(elements []Element, sample map[string]string) []DrawableBox {
	boxes := make([]DrawableBox, 0, len(elements))
	for i, raw := range elements {
		if !raw.Kind.Valid() {
			continue
		}
		el := normalize(raw)
		box := DrawableBox{
			ElementID: el.ID,
			Kind:      el.Kind,
			ZIndex:    i,
			X:         el.X,
			Y:         el.Y,
			Width:     el.Width,
			Height:    el.Height,
			Rotation:  el.Rotation,
			Opacity:   el.Opacity,
		}
		switch el.Kind {
		case KindTextField:
			if v, ok := sample[el.FieldKey]; ok {
				box.Content = v
			} else {
				box.Content = Placeholder(el.FieldKey)
			}
		case KindStaticText:
			box.Content = el.Content
		case KindImage:
			box.ImageURL = el.ImageURL
		}
		if t := el.Text; t != nil {
			box.Direction = DirectionRTL
			box.FontFamily = t.FontFamily
			box.FontSizePt = t.FontSizePt
			box.FontWeight = t.FontWeight
			box.TextAlign = t.TextAlign
			box.Color = t.Color
			box.LetterSpacing = t.LetterSpacing
		}
		if sh := el.Shape; sh != nil {
			box.BackgroundColor = sh.BackgroundColor
			if !el.Kind.IsLine() {
				box.BorderWidth = sh.BorderWidth
				box.BorderColor = sh.BorderColor
				box.BorderStyle = sh.BorderStyle
			}
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// MissingFields 返回 TextField 引用但 data 中没有的字段键，按绘制顺序去重。
func MissingFields(elements []Element, data map[string]string) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, el := range elements {
		if el.Kind != KindTextField {
			continue
		}
		if _, ok := data[el.FieldKey]; ok {
			continue
		}
		if _, dup := seen[el.FieldKey]; dup {
			continue
		}
		seen[el.FieldKey] = struct{}{}
		missing = append(missing, el.FieldKey)
	}
	return missing
}
