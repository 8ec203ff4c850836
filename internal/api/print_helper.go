package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voucherDesk/internal/errcode"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/render"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/templates"
)

const maxInlineImageBytes = 5 * 1024 * 1024

type assetReader interface {
	ReadObject(ctx context.Context, objectKey string, maxBytes int64) ([]byte, string, error)
}

// PrintWarning 与 worker 通知中的错误码保持一致。
type PrintWarning struct {
	Code        int      `json:"code"`
	Message     string   `json:"message"`
	MissingKeys []string `json:"missing_keys,omitempty"`
}

// printedDocument 是一次打印解析的结果。
type printedDocument struct {
	HTML          string            `json:"html"`
	Page          layout.Dimensions `json:"page"`
	MissingFields []string          `json:"missingFields,omitempty"`
	Warnings      []PrintWarning    `json:"warnings,omitempty"`
}

// printBuilder 把模板与一份单据数据解析成可打印的 HTML：
// 字段代入、素材图片内联为 data URI、缺失字段汇总。
type printBuilder struct {
	catalog  *layout.Catalog
	renderer *render.HTMLRenderer
	assets   assetReader
}

func newPrintBuilder(catalog *layout.Catalog, assets assetReader) (*printBuilder, error) {
	renderer, err := render.NewHTMLRenderer()
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = layout.DefaultCatalog()
	}
	return &printBuilder{catalog: catalog, renderer: renderer, assets: assets}, nil
}

// resolveData 在 sample 为 true 时以字段字典的示例值打底，调用方传入的值优先。
func (b *printBuilder) resolveData(data map[string]string, sample bool) map[string]string {
	if !sample {
		if data == nil {
			return map[string]string{}
		}
		return data
	}
	merged := b.catalog.SampleData()
	for k, v := range data {
		merged[k] = v
	}
	return merged
}

func (b *printBuilder) build(ctx context.Context, log *slog.Logger, tmpl *templates.Template, data map[string]string, sample bool) (*printedDocument, error) {
	data = b.resolveData(data, sample)
	record := layout.Template{
		Name:         tmpl.Name,
		TemplateType: tmpl.TemplateType,
		PageSize:     tmpl.PageSize,
		Elements:     tmpl.Elements,
	}
	doc, err := render.BuildDocument(record, b.catalog, data)
	if err != nil {
		return nil, err
	}

	out := &printedDocument{
		Page:          doc.Page,
		MissingFields: layout.MissingFields(tmpl.Elements, data),
	}
	removed, err := b.inlineImages(ctx, doc.Boxes)
	if err != nil {
		return nil, err
	}
	for _, r := range removed {
		log.Warn("print image item removed",
			slog.String("element_id", r.ElementID),
			slog.String("object_key", r.Key),
		)
	}
	if len(removed) > 0 {
		keys := make([]string, 0, len(removed))
		for _, r := range removed {
			keys = append(keys, r.Key)
		}
		out.Warnings = append(out.Warnings, PrintWarning{
			Code:        errcode.AssetUnavailable,
			Message:     "image asset missing",
			MissingKeys: keys,
		})
	}
	if len(out.MissingFields) > 0 {
		out.Warnings = append(out.Warnings, PrintWarning{
			Code:        errcode.ResourceMissing,
			Message:     "field data missing",
			MissingKeys: out.MissingFields,
		})
	}

	html, err := b.renderer.Render(doc)
	if err != nil {
		return nil, err
	}
	out.HTML = html
	return out, nil
}

type removedImage struct {
	ElementID string
	Key       string
}

// inlineImages 把引用素材对象键的图片替换为 data URI，无头浏览器无需再访问 MinIO。
// 对象不存在时移除该图片并返回记录；Bucket 不存在等其他错误直接返回。
func (b *printBuilder) inlineImages(ctx context.Context, boxes []layout.DrawableBox) ([]removedImage, error) {
	var removed []removedImage
	for i := range boxes {
		box := &boxes[i]
		if box.Kind != layout.KindImage || !storage.IsAssetKey(box.ImageURL) {
			continue
		}
		if b.assets == nil {
			continue
		}
		data, contentType, err := b.assets.ReadObject(ctx, box.ImageURL, maxInlineImageBytes)
		if err != nil {
			if storage.IsNoSuchKey(err) || errors.Is(err, storage.ErrObjectTooLarge) {
				removed = append(removed, removedImage{ElementID: box.ElementID, Key: box.ImageURL})
				box.ImageURL = ""
				continue
			}
			return nil, fmt.Errorf("failed to fetch image: %w", err)
		}
		if !strings.HasPrefix(contentType, "image/") {
			contentType = "image/png"
		}
		box.ImageURL = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
	}
	return removed, nil
}
