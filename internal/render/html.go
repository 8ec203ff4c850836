package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"voucherDesk/internal/layout"
)

// ReadyMarkerID 是无头浏览器等待的渲染完成标记。
const ReadyMarkerID = "print-ready"

// RootID is the element wrapping the printable page.
const RootID = "page-root"

const fontFallback = `"Noto Naskh Arabic", "Segoe UI", Tahoma, sans-serif`

var (
	colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20}|rgba?\(\s*[0-9.%,\s]+\))$`)
	fontPattern  = regexp.MustCompile(`^[\p{L}\p{N} _-]{1,64}$`)
)

// Document 是一张待打印的单据：页面尺寸加上已解析的绘制框。
type Document struct {
	Title string
	Page  layout.Dimensions
	Boxes []layout.DrawableBox
}

// BuildDocument 以示例或真实数据解析模板，生成可渲染的文档。
func BuildDocument(tmpl layout.Template, catalog *layout.Catalog, data map[string]string) (Document, error) {
	if catalog == nil {
		catalog = layout.DefaultCatalog()
	}
	dims, ok := catalog.Dimensions(tmpl.PageSize)
	if !ok {
		return Document{}, &layout.ValidationError{Field: "pageSize", Reason: fmt.Sprintf("unknown page size %q", tmpl.PageSize)}
	}
	return Document{
		Title: tmpl.Name,
		Page:  dims,
		Boxes: layout.RenderBoxes(tmpl.Elements, data),
	}, nil
}

type boxView struct {
	ID       string
	Style    template.CSS
	Text     bool
	Content  string
	Image    bool
	ImageURL template.URL
}

type pageView struct {
	Title   string
	PageCSS template.CSS
	RootCSS template.CSS
	Boxes   []boxView
}

// HTMLRenderer 把 Document 渲染成绝对定位、从右到左的 HTML 页面。
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("document").Parse(documentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// Render executes the document template.
func (r *HTMLRenderer) Render(doc Document) (string, error) {
	if doc.Page.Width <= 0 || doc.Page.Height <= 0 {
		return "", fmt.Errorf("page dimensions must be positive")
	}
	view := pageView{
		Title:   doc.Title,
		PageCSS: template.CSS(fmt.Sprintf("size: %spx %spx; margin: 0;", num(doc.Page.Width), num(doc.Page.Height))),
		RootCSS: template.CSS(fmt.Sprintf("width: %spx; height: %spx;", num(doc.Page.Width), num(doc.Page.Height))),
		Boxes:   make([]boxView, 0, len(doc.Boxes)),
	}
	for _, box := range doc.Boxes {
		src := imageSource(box.ImageURL)
		view.Boxes = append(view.Boxes, boxView{
			ID:       box.ElementID,
			Style:    boxStyle(box),
			Text:     box.Kind.IsText(),
			Content:  box.Content,
			Image:    box.Kind == layout.KindImage && src != "",
			ImageURL: src,
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return buf.String(), nil
}

// imageSource 只放行 http(s) 地址与内联的 data:image URI，其余一律丢弃。
func imageSource(raw string) template.URL {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return template.URL(raw)
	case strings.HasPrefix(lower, "data:image/") && !strings.HasPrefix(lower, "data:image/svg"):
		return template.URL(raw)
	}
	return ""
}

func boxStyle(box layout.DrawableBox) template.CSS {
	var b strings.Builder
	fmt.Fprintf(&b, "left: %spx; top: %spx; width: %spx; height: %spx; z-index: %d; opacity: %s;",
		num(box.X), num(box.Y), num(box.Width), num(box.Height), box.ZIndex+1, num(box.Opacity))
	if box.Rotation != 0 {
		fmt.Fprintf(&b, " transform: rotate(%sdeg);", num(box.Rotation))
	}

	if box.Kind.IsText() {
		family := layout.DefaultFontFamily
		if fontPattern.MatchString(box.FontFamily) {
			family = box.FontFamily
		}
		fmt.Fprintf(&b, ` font-family: "%s", %s;`, family, fontFallback)
		fmt.Fprintf(&b, " font-size: %spt;", num(box.FontSizePt))
		if box.FontWeight.Valid() {
			fmt.Fprintf(&b, " font-weight: %s;", box.FontWeight)
		}
		if box.TextAlign.Valid() {
			fmt.Fprintf(&b, " text-align: %s;", box.TextAlign)
		}
		fmt.Fprintf(&b, " color: %s;", safeColor(box.Color, layout.DefaultColor))
		if box.LetterSpacing != 0 {
			fmt.Fprintf(&b, " letter-spacing: %spx;", num(box.LetterSpacing))
		}
	}

	if box.Kind.IsShape() {
		fmt.Fprintf(&b, " background-color: %s;", safeColor(box.BackgroundColor, layout.Transparent))
		if !box.Kind.IsLine() && box.BorderWidth > 0 && box.BorderStyle.Valid() {
			fmt.Fprintf(&b, " border: %spx %s %s;", num(box.BorderWidth), box.BorderStyle, safeColor(box.BorderColor, layout.DefaultColor))
		}
		if box.Kind == layout.KindCircle {
			b.WriteString(" border-radius: 50%;")
		}
	}
	return template.CSS(b.String())
}

func safeColor(c, fallback string) string {
	c = strings.TrimSpace(c)
	if colorPattern.MatchString(c) {
		return c
	}
	return fallback
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const documentTemplate = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { {{.PageCSS}} }
* { box-sizing: border-box; -webkit-print-color-adjust: exact; print-color-adjust: exact; }
html, body { margin: 0; padding: 0; background: white; }
#page-root { position: relative; overflow: hidden; background: white; }
.el { position: absolute; }
.el.text { direction: rtl; white-space: nowrap; overflow: hidden; line-height: 1.2; }
.el img { width: 100%; height: 100%; object-fit: contain; }
</style>
</head>
<body>
<div id="page-root" style="{{.RootCSS}}">
{{- range .Boxes}}
<div class="el{{if .Text}} text{{end}}" data-element-id="{{.ID}}" style="{{.Style}}">
{{- if .Text}}{{.Content}}{{end -}}
{{- if .Image}}<img src="{{.ImageURL}}" alt="">{{end -}}
</div>
{{- end}}
</div>
<div id="print-ready"></div>
</body>
</html>
`
