package layout

// ElementPatch 是 UpdateElement 的浅合并输入：nil 字段保持不变。
// 与元素类型无关的字段会被忽略（例如给矩形设置 fontSize）。
type ElementPatch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Height   *float64 `json:"height,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`

	FieldKey *string `json:"fieldKey,omitempty"`
	Text     *string `json:"text,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`

	FontFamily    *string     `json:"fontFamily,omitempty"`
	FontSize      *float64    `json:"fontSize,omitempty"`
	FontWeight    *FontWeight `json:"fontWeight,omitempty"`
	TextAlign     *TextAlign  `json:"textAlign,omitempty"`
	Color         *string     `json:"color,omitempty"`
	LetterSpacing *float64    `json:"letterSpacing,omitempty"`

	BackgroundColor *string      `json:"backgroundColor,omitempty"`
	BorderWidth     *float64     `json:"borderWidth,omitempty"`
	BorderColor     *string      `json:"borderColor,omitempty"`
	BorderStyle     *BorderStyle `json:"borderStyle,omitempty"`
}

// Empty 判断补丁是否不改变任何字段。
func (p ElementPatch) Empty() bool {
	return p == ElementPatch{}
}

// apply 把补丁合并到元素上；宽高不会低于 MinSize，x/y/rotation 不做限制。
func (p ElementPatch) apply(el *Element) {
	setFloat(&el.X, p.X)
	setFloat(&el.Y, p.Y)
	setFloat(&el.Width, p.Width)
	setFloat(&el.Height, p.Height)
	setFloat(&el.Rotation, p.Rotation)
	setFloat(&el.Opacity, p.Opacity)
	el.Width = clampMin(el.Width, MinSize)
	el.Height = clampMin(el.Height, MinSize)
	el.Opacity = clamp(el.Opacity, 0, 1)

	switch el.Kind {
	case KindTextField:
		setString(&el.FieldKey, p.FieldKey)
	case KindStaticText:
		setString(&el.Content, p.Text)
	case KindImage:
		setString(&el.ImageURL, p.ImageURL)
	}

	if t := el.Text; t != nil {
		if p.FontFamily != nil && *p.FontFamily != "" {
			t.FontFamily = *p.FontFamily
		}
		if p.FontSize != nil {
			t.FontSizePt = clampMin(*p.FontSize, 1)
		}
		if p.FontWeight != nil && p.FontWeight.Valid() {
			t.FontWeight = *p.FontWeight
		}
		if p.TextAlign != nil && p.TextAlign.Valid() {
			t.TextAlign = *p.TextAlign
		}
		if p.Color != nil && *p.Color != "" {
			t.Color = *p.Color
		}
		setFloat(&t.LetterSpacing, p.LetterSpacing)
	}

	if s := el.Shape; s != nil {
		if p.BackgroundColor != nil && *p.BackgroundColor != "" {
			s.BackgroundColor = *p.BackgroundColor
		}
		if el.Kind.IsLine() {
			return
		}
		if p.BorderWidth != nil {
			s.BorderWidth = clampMin(*p.BorderWidth, 0)
		}
		if p.BorderColor != nil && *p.BorderColor != "" {
			s.BorderColor = *p.BorderColor
		}
		if p.BorderStyle != nil && p.BorderStyle.Valid() {
			s.BorderStyle = *p.BorderStyle
		}
	}
}
