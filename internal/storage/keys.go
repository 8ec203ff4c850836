package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// 对象键布局：
//
//	templates/<id>/preview.jpg         模板缩略图
//	templates/<id>/renders/<rid>.pdf   单据打印件
//	assets/<yyyy>/<mm>/<uuid><ext>     上传的图片素材
const (
	templatesPrefix = "templates"
	assetsPrefix    = "assets"
)

// TemplatePrefix returns the prefix holding every object owned by a template.
func TemplatePrefix(templateID string) string {
	return fmt.Sprintf("%s/%s/", templatesPrefix, templateID)
}

// TemplatePreviewKey 返回模板缩略图的对象键。
func TemplatePreviewKey(templateID string) string {
	return TemplatePrefix(templateID) + "preview.jpg"
}

// RendersPrefix 返回模板打印件所在的前缀。
func RendersPrefix(templateID string) string {
	return TemplatePrefix(templateID) + "renders/"
}

// RenderKey returns the object key for one rendered voucher.
func RenderKey(templateID, renderID string) string {
	return RendersPrefix(templateID) + renderID + ".pdf"
}

// AssetKey 为上传素材生成按月份分目录的对象键。
func AssetKey(now time.Time, id, ext string) string {
	ext = strings.ToLower(ext)
	return path.Join(assetsPrefix, now.UTC().Format("2006"), now.UTC().Format("01"), id+ext)
}

// IsAssetKey 校验对象键位于素材目录下且不含路径穿越。
func IsAssetKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return false
	}
	return path.Clean(key) == key && strings.HasPrefix(key, assetsPrefix+"/")
}
