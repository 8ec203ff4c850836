package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TemplateRecord 是持久化服务保存的模板形状，字段与 API 一一对应。
type TemplateRecord struct {
	Name         string       `json:"name"`
	TemplateType TemplateType `json:"templateType"`
	PageSize     PageSize     `json:"pageSize"`
	Elements     []Element    `json:"elements"`
	IsActive     bool         `json:"isActive"`

	skipped []SkippedElement
}

// Skipped 返回解码时因未知类型被跳过的元素。
func (r TemplateRecord) Skipped() []SkippedElement {
	return r.skipped
}

// UnmarshalJSON 逐个解码元素：未知 type 的元素被跳过并记录，其余格式错误使整个解码失败。
// 缺失的 elements 视为空列表。
func (r *TemplateRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name         string            `json:"name"`
		TemplateType TemplateType      `json:"templateType"`
		PageSize     PageSize          `json:"pageSize"`
		Elements     []json.RawMessage `json:"elements"`
		IsActive     bool              `json:"isActive"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	elements := make([]Element, 0, len(raw.Elements))
	var skipped []SkippedElement
	for i, msg := range raw.Elements {
		var el Element
		if err := json.Unmarshal(msg, &el); err != nil {
			var unknown *UnknownKindError
			if errors.As(err, &unknown) {
				skipped = append(skipped, SkippedElement{
					Index:  i,
					ID:     unknown.ID,
					Kind:   unknown.Kind,
					Reason: "unknown element type",
				})
				continue
			}
			return fmt.Errorf("decode element %d: %w", i, err)
		}
		elements = append(elements, el)
	}

	*r = TemplateRecord{
		Name:         raw.Name,
		TemplateType: raw.TemplateType,
		PageSize:     raw.PageSize,
		Elements:     elements,
		IsActive:     raw.IsActive,
		skipped:      skipped,
	}
	return nil
}

// DecodeRecord 从 JSON 解码模板记录，供管理端导入使用。
func DecodeRecord(data []byte) (TemplateRecord, error) {
	var rec TemplateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TemplateRecord{}, err
	}
	return rec, nil
}

// elementJSON 是元素的线格式：扁平对象，type 为判别字段。
// 指针字段用于区分“缺失”与“零值”，缺失时填入该类型的默认值。
type elementJSON struct {
	ID       string   `json:"id"`
	Type     Kind     `json:"type"`
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
	FontWeight    *looseStyle `json:"fontWeight,omitempty"`
	TextAlign     *looseStyle `json:"textAlign,omitempty"`
	Color         *string     `json:"color,omitempty"`
	LetterSpacing *float64    `json:"letterSpacing,omitempty"`

	BackgroundColor *string     `json:"backgroundColor,omitempty"`
	BorderWidth     *float64    `json:"borderWidth,omitempty"`
	BorderColor     *string     `json:"borderColor,omitempty"`
	BorderStyle     *looseStyle `json:"borderStyle,omitempty"`
}

// looseStyle 接收存量记录里的样式值（字符串或数字），不做校验；
// 非法值交给 normalize 回退为默认值，避免单个元素拖垮整条记录。
// 严格校验只在 ElementPatch 上做。
type looseStyle string

func styleOf[T ~string](v T) *looseStyle {
	s := looseStyle(v)
	return &s
}

func (s looseStyle) MarshalJSON() ([]byte, error) {
	if FontWeight(s).Numeric() {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

func (s *looseStyle) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch raw := v.(type) {
	case string:
		*s = looseStyle(strings.ToLower(strings.TrimSpace(raw)))
	case float64:
		*s = looseStyle(strconv.Itoa(int(raw)))
	default:
		*s = ""
	}
	return nil
}

func (e Element) MarshalJSON() ([]byte, error) {
	el := normalize(e)
	out := elementJSON{
		ID:       el.ID,
		Type:     el.Kind,
		X:        &el.X,
		Y:        &el.Y,
		Width:    &el.Width,
		Height:   &el.Height,
		Rotation: &el.Rotation,
		Opacity:  &el.Opacity,
	}
	switch el.Kind {
	case KindTextField:
		out.FieldKey = &el.FieldKey
	case KindStaticText:
		out.Text = &el.Content
	case KindImage:
		out.ImageURL = &el.ImageURL
	}
	if t := el.Text; t != nil {
		out.FontFamily = &t.FontFamily
		out.FontSize = &t.FontSizePt
		out.FontWeight = styleOf(t.FontWeight)
		out.TextAlign = styleOf(t.TextAlign)
		out.Color = &t.Color
		out.LetterSpacing = &t.LetterSpacing
	}
	if s := el.Shape; s != nil {
		out.BackgroundColor = &s.BackgroundColor
		if !el.Kind.IsLine() {
			out.BorderWidth = &s.BorderWidth
			out.BorderColor = &s.BorderColor
			out.BorderStyle = styleOf(s.BorderStyle)
		}
	}
	return json.Marshal(out)
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var in elementJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return &UnknownKindError{ID: in.ID, Kind: in.Type}
	}

	el := DefaultElement(in.Type)
	el.ID = in.ID
	setFloat(&el.X, in.X)
	setFloat(&el.Y, in.Y)
	setFloat(&el.Width, in.Width)
	setFloat(&el.Height, in.Height)
	setFloat(&el.Rotation, in.Rotation)
	setFloat(&el.Opacity, in.Opacity)

	switch in.Type {
	case KindTextField:
		setString(&el.FieldKey, in.FieldKey)
	case KindStaticText:
		setString(&el.Content, in.Text)
	case KindImage:
		setString(&el.ImageURL, in.ImageURL)
	}
	if el.Text != nil {
		setString(&el.Text.FontFamily, in.FontFamily)
		setFloat(&el.Text.FontSizePt, in.FontSize)
		if in.FontWeight != nil {
			el.Text.FontWeight = FontWeight(*in.FontWeight)
		}
		if in.TextAlign != nil {
			// 旧值 right/left 映射为逻辑对齐，其余非法值由 normalize 兜底
			if align, err := ParseTextAlign(string(*in.TextAlign)); err == nil {
				el.Text.TextAlign = align
			} else {
				el.Text.TextAlign = TextAlign(*in.TextAlign)
			}
		}
		setString(&el.Text.Color, in.Color)
		setFloat(&el.Text.LetterSpacing, in.LetterSpacing)
	}
	if el.Shape != nil {
		setString(&el.Shape.BackgroundColor, in.BackgroundColor)
		if !in.Type.IsLine() {
			setFloat(&el.Shape.BorderWidth, in.BorderWidth)
			setString(&el.Shape.BorderColor, in.BorderColor)
			if in.BorderStyle != nil {
				el.Shape.BorderStyle = BorderStyle(*in.BorderStyle)
			}
		}
	}

	*e = normalize(el)
	return nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
