package layout

// MinSize 是宽高的下限（布局单位）。
const MinSize = 1.0

// 新元素的默认落点。
const (
	DefaultX = 50.0
	DefaultY = 50.0
)

// DuplicateOffset 是复制元素时在两个轴上的偏移量。
const DuplicateOffset = 20.0

const (
	DefaultFontFamily      = "Cairo"
	DefaultFontSizePt      = 14.0
	DefaultColor           = "#000000"
	DefaultBorderWidth     = 1.0
	DefaultStaticText      = "نص ثابت"
	DefaultOpacity         = 1.0
	defaultLineThickness   = 2.0
	defaultVerticalLength  = 100.0
	defaultHorizontalWidth = 200.0
)

// DefaultTextStyle 返回文字类元素的默认样式。
func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontFamily:    DefaultFontFamily,
		FontSizePt:    DefaultFontSizePt,
		FontWeight:    WeightNormal,
		TextAlign:     AlignStart,
		Color:         DefaultColor,
		LetterSpacing: 0,
	}
}

// DefaultShapeStyle 返回指定图形类型的默认样式。
func DefaultShapeStyle(kind Kind) ShapeStyle {
	if kind.IsLine() {
		return ShapeStyle{
			BackgroundColor: DefaultColor,
			BorderWidth:     0,
			BorderColor:     DefaultColor,
			BorderStyle:     BorderSolid,
		}
	}
	return ShapeStyle{
		BackgroundColor: Transparent,
		BorderWidth:     DefaultBorderWidth,
		BorderColor:     DefaultColor,
		BorderStyle:     BorderSolid,
	}
}

// DefaultSize 返回该类型元素的初始宽高。
func DefaultSize(kind Kind) (width, height float64) {
	switch kind {
	case KindTextField, KindStaticText:
		return 160, 25
	case KindLine:
		return defaultHorizontalWidth, defaultLineThickness
	case KindVerticalLine:
		return defaultLineThickness, defaultVerticalLength
	case KindRectangle:
		return 150, 80
	case KindCircle:
		return 80, 80
	default:
		return 100, 100
	}
}

// DefaultElement 构造带默认样式、默认落点的元素（不含 ID）。
func DefaultElement(kind Kind) Element {
	w, h := DefaultSize(kind)
	el := Element{
		Kind:    kind,
		X:       DefaultX,
		Y:       DefaultY,
		Width:   w,
		Height:  h,
		Opacity: DefaultOpacity,
	}
	if kind.IsText() {
		style := DefaultTextStyle()
		el.Text = &style
	}
	if kind.IsShape() {
		style := DefaultShapeStyle(kind)
		el.Shape = &style
	}
	if kind == KindStaticText {
		el.Content = DefaultStaticText
	}
	return el
}

// normalize 补齐缺失的样式字段并收紧数值范围，保证元素只携带本类型的字段。
func normalize(el Element) Element {
	out := el.Clone()
	out.Width = clampMin(out.Width, MinSize)
	out.Height = clampMin(out.Height, MinSize)
	out.Opacity = clamp(out.Opacity, 0, 1)

	if out.Kind.IsText() {
		def := DefaultTextStyle()
		if out.Text == nil {
			out.Text = &def
		} else {
			if out.Text.FontFamily == "" {
				out.Text.FontFamily = def.FontFamily
			}
			if out.Text.FontSizePt <= 0 {
				out.Text.FontSizePt = def.FontSizePt
			}
			if !out.Text.FontWeight.Valid() {
				out.Text.FontWeight = def.FontWeight
			}
			if !out.Text.TextAlign.Valid() {
				out.Text.TextAlign = def.TextAlign
			}
			if out.Text.Color == "" {
				out.Text.Color = def.Color
			}
		}
	} else {
		out.Text = nil
	}

	if out.Kind.IsShape() {
		def := DefaultShapeStyle(out.Kind)
		if out.Shape == nil {
			out.Shape = &def
		} else {
			if out.Shape.BackgroundColor == "" {
				out.Shape.BackgroundColor = def.BackgroundColor
			}
			if out.Shape.BorderColor == "" {
				out.Shape.BorderColor = def.BorderColor
			}
			if !out.Shape.BorderStyle.Valid() {
				out.Shape.BorderStyle = def.BorderStyle
			}
			if out.Shape.BorderWidth < 0 {
				out.Shape.BorderWidth = 0
			}
		}
	} else {
		out.Shape = nil
	}

	if out.Kind != KindTextField {
		out.FieldKey = ""
	}
	if out.Kind != KindStaticText {
		out.Content = ""
	}
	if out.Kind != KindImage {
		out.ImageURL = ""
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampMin(v, lo float64) float64 {
	if v < lo {
		return lo
	}
	return v
}
