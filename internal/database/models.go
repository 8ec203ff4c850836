package database

import (
	"time"

	"gorm.io/datatypes"
)

// Template 表示一份已保存的单据版式。
// ID 为 snowflake，Elements 以 JSONB 存储元素序列（数组顺序即绘制顺序）。
// 同一 TemplateType 下最多一条 IsActive 记录，由 templates 服务在事务中维护。
type Template struct {
	ID           int64          `gorm:"primaryKey;autoIncrement:false"`
	Name         string         `gorm:"size:255;not null"`
	TemplateType string         `gorm:"size:64;index;not null"`
	PageSize     string         `gorm:"size:32;not null"`
	Elements     datatypes.JSON `gorm:"type:jsonb"`
	IsActive     bool           `gorm:"default:false;index"`

	PreviewImageURL  string `gorm:"size:512"`
	PreviewObjectKey string `gorm:"size:512"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Asset 记录上传到对象存储、可被 Image 元素引用的文件。
type Asset struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false"`
	ObjectKey   string `gorm:"size:512;uniqueIndex"`
	ContentType string `gorm:"size:128"`
	Size        int64
	CreatedAt   time.Time
}

// Models lists everything AutoMigrate should manage.
func Models() []any {
	return []any{&Template{}, &Asset{}}
}
