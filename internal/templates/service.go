package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"voucherDesk/internal/database"
	"voucherDesk/internal/layout"
)

var (
	ErrNotFound  = errors.New("template not found")
	ErrInvalidID = errors.New("invalid template id")
)

// PreviewEnqueuer 在模板保存后投递缩略图任务。
type PreviewEnqueuer interface {
	EnqueuePreview(ctx context.Context, templateID int64) error
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	TemplateType layout.TemplateType
	Active       *bool
}

// Template 是服务对外返回的模板，ID 以字符串形式暴露，避免前端精度丢失。
type Template struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	TemplateType    layout.TemplateType     `json:"templateType"`
	PageSize        layout.PageSize         `json:"pageSize"`
	Elements        []layout.Element        `json:"elements"`
	IsActive        bool                    `json:"isActive"`
	PreviewImageURL string                  `json:"previewImageUrl,omitempty"`
	Skipped         []layout.SkippedElement `json:"skipped,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// Record 转换为编辑会话可加载的记录。
func (t Template) Record() layout.TemplateRecord {
	return layout.TemplateRecord{
		Name:         t.Name,
		TemplateType: t.TemplateType,
		PageSize:     t.PageSize,
		Elements:     t.Elements,
		IsActive:     t.IsActive,
	}
}

// Service 负责模板的持久化。
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	catalog  *layout.Catalog
	previews PreviewEnqueuer
	logger   *slog.Logger
}

// NewService 创建模板服务；previews 可以为 nil（例如管理命令中）。
func NewService(db *gorm.DB, node *snowflake.Node, catalog *layout.Catalog, previews PreviewEnqueuer, logger *slog.Logger) *Service {
	if catalog == nil {
		catalog = layout.DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		node:     node,
		catalog:  catalog,
		previews: previews,
		logger:   logger,
	}
}

// ParseID parses a snowflake id from its string form.
func ParseID(raw string) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id.Int64(), nil
}

// FormatID is the inverse of ParseID.
func FormatID(id int64) string {
	return snowflake.ID(id).String()
}

// List 返回模板列表，按创建时间倒序。
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Template, error) {
	query := s.db.WithContext(ctx).Model(&database.Template{})
	if filter.TemplateType != "" {
		query = query.Where("template_type = ?", string(filter.TemplateType))
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}

	var rows []database.Template
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make([]Template, 0, len(rows))
	for i := range rows {
		tmpl, err := toTemplate(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *tmpl)
	}
	return out, nil
}

// Get loads one template.
func (s *Service) Get(ctx context.Context, id int64) (*Template, error) {
	row, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return toTemplate(row)
}

// GetActive 返回某单据类型当前启用的模板。
func (s *Service) GetActive(ctx context.Context, templateType layout.TemplateType) (*Template, error) {
	if !templateType.Valid() {
		return nil, &layout.ValidationError{Field: "templateType", Reason: fmt.Sprintf("unknown template type %q", templateType)}
	}
	var row database.Template
	err := s.db.WithContext(ctx).
		Where("template_type = ? AND is_active = ?", string(templateType), true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return toTemplate(&row)
}

// Create 校验并保存新模板。记录中 isActive 为 true 时在同一事务中停用同类型的其他模板。
func (s *Service) Create(ctx context.Context, rec layout.TemplateRecord) (*Template, error) {
	tmpl, err := s.prepare(rec)
	if err != nil {
		return nil, err
	}
	elements, err := json.Marshal(tmpl.Elements)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}

	row := database.Template{
		ID:           s.node.Generate().Int64(),
		Name:         tmpl.Name,
		TemplateType: string(tmpl.TemplateType),
		PageSize:     string(tmpl.PageSize),
		Elements:     datatypes.JSON(elements),
		IsActive:     tmpl.IsActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.IsActive {
			if err := deactivateOthers(tx, row.TemplateType, row.ID); err != nil {
				return err
			}
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.enqueuePreview(ctx, row.ID)
	return toTemplate(&row)
}

// Update 整体替换模板内容（包括启用状态），预览图字段保持不变。
func (s *Service) Update(ctx context.Context, id int64, rec layout.TemplateRecord) (*Template, error) {
	return s.update(ctx, id, rec, true)
}

// UpdateContent 与 Update 相同，但保留库中的启用状态，rec.IsActive 被忽略。
// 编辑会话保存时使用，避免覆盖会话打开期间通过 Activate/Deactivate 做出的修改。
func (s *Service) UpdateContent(ctx context.Context, id int64, rec layout.TemplateRecord) (*Template, error) {
	return s.update(ctx, id, rec, false)
}

func (s *Service) update(ctx context.Context, id int64, rec layout.TemplateRecord, setActive bool) (*Template, error) {
	tmpl, err := s.prepare(rec)
	if err != nil {
		return nil, err
	}
	elements, err := json.Marshal(tmpl.Elements)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}

	var row *database.Template
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}
		active := existing.IsActive
		if setActive {
			active = tmpl.IsActive
		}
		// 单据类型改变时，保留的启用状态同样要求新类型下没有其他启用模板。
		if active {
			if err := deactivateOthers(tx, string(tmpl.TemplateType), id); err != nil {
				return err
			}
		}
		updates := map[string]any{
			"name":          tmpl.Name,
			"template_type": string(tmpl.TemplateType),
			"page_size":     string(tmpl.PageSize),
			"elements":      datatypes.JSON(elements),
			"is_active":     active,
		}
		if err := tx.Model(existing).Updates(updates).Error; err != nil {
			return err
		}
		row, err = s.find(ctx, tx, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	s.enqueuePreview(ctx, id)
	return toTemplate(row)
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&database.Template{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Activate 将模板设为其单据类型的当前模板，同类型的其他模板在同一事务中被停用。
func (s *Service) Activate(ctx context.Context, id int64) (*Template, error) {
	var row *database.Template
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.find(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := deactivateOthers(tx, existing.TemplateType, id); err != nil {
			return err
		}
		if err := tx.Model(existing).Update("is_active", true).Error; err != nil {
			return err
		}
		existing.IsActive = true
		row = existing
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("activate template: %w", err)
	}
	return toTemplate(row)
}

// Deactivate clears the active flag; the document type is left without an active template.
func (s *Service) Deactivate(ctx context.Context, id int64) (*Template, error) {
	row, err := s.find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(row).Update("is_active", false).Error; err != nil {
		return nil, fmt.Errorf("deactivate template: %w", err)
	}
	row.IsActive = false
	return toTemplate(row)
}

// SetPreview 记录 worker 生成的缩略图。
func (s *Service) SetPreview(ctx context.Context, id int64, objectKey, url string) error {
	res := s.db.WithContext(ctx).Model(&database.Template{}).Where("id = ?", id).Updates(map[string]any{
		"preview_object_key": objectKey,
		"preview_image_url":  url,
	})
	if res.Error != nil {
		return fmt.Errorf("set template preview: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// prepare 通过编辑会话规范化记录（补齐默认值、重建缺失 ID），再做保存前校验。
func (s *Service) prepare(rec layout.TemplateRecord) (layout.Template, error) {
	session := layout.NewEditorSession(layout.Template{}, layout.WithCatalog(s.catalog))
	skipped, err := session.Deserialize(rec)
	if err != nil {
		return layout.Template{}, err
	}
	if len(skipped) > 0 {
		s.logger.Warn("dropping elements with unknown type", slog.Int("count", len(skipped)))
	}
	tmpl := session.Template()
	if err := tmpl.Validate(s.catalog); err != nil {
		return layout.Template{}, err
	}
	return tmpl, nil
}

func (s *Service) find(ctx context.Context, db *gorm.DB, id int64) (*database.Template, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	var row database.Template
	err := db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &row, nil
}

func (s *Service) enqueuePreview(ctx context.Context, id int64) {
	if s.previews == nil {
		return
	}
	if err := s.previews.EnqueuePreview(ctx, id); err != nil {
		s.logger.Warn("enqueue template preview failed",
			slog.String("template_id", FormatID(id)),
			slog.Any("error", err),
		)
	}
}

func deactivateOthers(tx *gorm.DB, templateType string, keepID int64) error {
	return tx.Model(&database.Template{}).
		Where("template_type = ? AND id <> ? AND is_active = ?", templateType, keepID, true).
		Update("is_active", false).Error
}

func toTemplate(row *database.Template) (*Template, error) {
	rec := layout.TemplateRecord{}
	if len(row.Elements) > 0 {
		payload := fmt.Sprintf(`{"elements":%s}`, string(row.Elements))
		decoded, err := layout.DecodeRecord([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decode template %d elements: %w", row.ID, err)
		}
		rec = decoded
	}
	elements := rec.Elements
	if elements == nil {
		elements = []layout.Element{}
	}
	return &Template{
		ID:              FormatID(row.ID),
		Name:            row.Name,
		TemplateType:    layout.TemplateType(row.TemplateType),
		PageSize:        layout.PageSize(row.PageSize),
		Elements:        elements,
		IsActive:        row.IsActive,
		PreviewImageURL: row.PreviewImageURL,
		Skipped:         rec.Skipped(),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}
