package api

import (
	"errors"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voucherDesk/internal/api/middleware"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/metrics"
	"voucherDesk/internal/printtoken"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
)

const renderLinkTTL = 24 * time.Hour

// TemplateHandler 负责模板的增删改查、启用切换、预览与打印。
type TemplateHandler struct {
	templates     TemplateService
	catalog       *layout.Catalog
	renders       RenderEnqueuer
	storage       ObjectStorage
	tokens        *printtoken.Service
	publicBaseURL string
}

func NewTemplateHandler(
	svc TemplateService,
	catalog *layout.Catalog,
	renders RenderEnqueuer,
	storageClient ObjectStorage,
	tokens *printtoken.Service,
	publicBaseURL string,
) *TemplateHandler {
	if catalog == nil {
		catalog = layout.DefaultCatalog()
	}
	return &TemplateHandler{
		templates:     svc,
		catalog:       catalog,
		renders:       renders,
		storage:       storageClient,
		tokens:        tokens,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

type dataRequest struct {
	Data   map[string]string `json:"data"`
	Sample bool              `json:"sample"`
}

// GET /v1/templates?type=&active=
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	filter := templates.ListFilter{}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		tt, err := layout.ParseTemplateType(raw)
		if err != nil {
			respondError(c, middleware.LoggerFromContext(c), err, "failed to list templates")
			return
		}
		filter.TemplateType = tt
	}
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, "invalid active filter")
			return
		}
		filter.Active = &active
	}

	items, err := h.templates.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to list templates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// POST /v1/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var rec layout.TemplateRecord
	if !bindRecord(c, &rec) {
		return
	}
	created, err := h.templates.Create(c.Request.Context(), rec)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to create template")
		return
	}
	if created.IsActive {
		metrics.ObserveTemplateActivation()
	}
	c.JSON(http.StatusCreated, created)
}

// GET /v1/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to get template")
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// GET /v1/templates/active/:type
func (h *TemplateHandler) GetActiveTemplate(c *gin.Context) {
	tt, err := layout.ParseTemplateType(c.Param("type"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to get active template")
		return
	}
	tmpl, err := h.templates.GetActive(c.Request.Context(), tt)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to get active template")
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// PUT /v1/templates/:id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	var rec layout.TemplateRecord
	if !bindRecord(c, &rec) {
		return
	}
	updated, err := h.templates.Update(c.Request.Context(), id, rec)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to update template")
		return
	}
	if updated.IsActive {
		metrics.ObserveTemplateActivation()
	}
	c.JSON(http.StatusOK, updated)
}

// DELETE /v1/templates/:id
// 删除记录后尽力清理缩略图与打印件，清理失败只记日志。
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	log := middleware.LoggerFromContext(c)
	if err := h.templates.Delete(c.Request.Context(), id); err != nil {
		respondError(c, log, err, "failed to delete template")
		return
	}
	if h.storage != nil {
		prefix := storage.TemplatePrefix(templates.FormatID(id))
		if err := h.storage.DeletePrefix(c.Request.Context(), prefix); err != nil {
			log.Warn("cleanup template objects failed", slog.String("prefix", prefix), slog.Any("error", err))
		}
	}
	c.Status(http.StatusNoContent)
}

// POST /v1/templates/:id/activate
func (h *TemplateHandler) ActivateTemplate(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	tmpl, err := h.templates.Activate(c.Request.Context(), id)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to activate template")
		return
	}
	metrics.ObserveTemplateActivation()
	c.JSON(http.StatusOK, tmpl)
}

// POST /v1/templates/:id/deactivate
func (h *TemplateHandler) DeactivateTemplate(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	tmpl, err := h.templates.Deactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to deactivate template")
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

// POST /v1/templates/:id/preview
// 返回解析后的绘制框；未传数据时使用字段字典的示例值。
func (h *TemplateHandler) PreviewTemplate(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	var req dataRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to preview template")
		return
	}

	data := req.Data
	if data == nil || req.Sample {
		merged := h.catalog.SampleData()
		for k, v := range req.Data {
			merged[k] = v
		}
		data = merged
	}
	page, ok := h.catalog.Dimensions(tmpl.PageSize)
	if !ok {
		page, _ = h.catalog.Dimensions(layout.DefaultPageSize)
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"boxes":         layout.RenderBoxes(tmpl.Elements, data),
		"missingFields": layout.MissingFields(tmpl.Elements, data),
	})
}

// POST /v1/templates/:id/print-link
// 签发短期有效的打印链接，浏览器打开后直接得到可打印的 HTML。
func (h *TemplateHandler) CreatePrintLink(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	var req dataRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	log := middleware.LoggerFromContext(c)
	if _, err := h.templates.Get(c.Request.Context(), id); err != nil {
		respondError(c, log, err, "failed to create print link")
		return
	}
	if h.tokens == nil {
		Internal(c, "print links are not configured")
		return
	}

	templateID := templates.FormatID(id)
	token, expiresAt, err := h.tokens.Sign(templateID, req.Data, req.Sample || req.Data == nil)
	if err != nil {
		log.Error("sign print token failed", slog.Any("error", err))
		Internal(c, "failed to create print link")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       h.publicBaseURL + "/v1/print/" + token,
		"expiresAt": expiresAt,
	})
}

// POST /v1/templates/:id/render
// 投递 PDF 渲染任务，完成后通过 WebSocket 通知下载地址。
func (h *TemplateHandler) RenderVoucher(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	var req dataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	log := middleware.LoggerFromContext(c)
	if h.renders == nil {
		Internal(c, "render queue not configured")
		return
	}
	if _, err := h.templates.Get(c.Request.Context(), id); err != nil {
		respondError(c, log, err, "failed to enqueue render")
		return
	}

	payload := tasks.VoucherRenderPayload{
		TemplateID:    templates.FormatID(id),
		RenderID:      uuid.NewString(),
		Data:          req.Data,
		CorrelationID: middleware.GetCorrelationID(c),
	}
	taskID, err := h.renders.EnqueueRender(c.Request.Context(), payload)
	if err != nil {
		log.Error("enqueue voucher render failed", slog.Any("error", err))
		Internal(c, "failed to enqueue render")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"renderId": payload.RenderID,
		"taskId":   taskID,
	})
}

// GET /v1/templates/:id/renders
// 列出该模板最近的打印件及其临时下载地址。
func (h *TemplateHandler) ListRenders(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	log := middleware.LoggerFromContext(c)
	if h.storage == nil {
		Internal(c, "object storage not configured")
		return
	}
	templateID := templates.FormatID(id)
	objects, err := h.storage.ListObjects(c.Request.Context(), storage.RendersPrefix(templateID), limit)
	if err != nil {
		log.Error("list renders", slog.Any("error", err))
		Internal(c, "failed to list renders")
		return
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		filename := path.Base(obj.Key)
		url, err := h.storage.GenerateDownloadURL(c.Request.Context(), obj.Key, renderLinkTTL, filename)
		if err != nil {
			log.Error("generate render url", slog.String("objectKey", obj.Key), slog.Any("error", err))
			continue
		}
		items = append(items, gin.H{
			"renderId":     strings.TrimSuffix(filename, ".pdf"),
			"url":          url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func templateIDParam(c *gin.Context) (int64, bool) {
	id, err := templates.ParseID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid template id")
		return 0, false
	}
	return id, true
}

// bindRecord 解码模板记录；元素字段非法（如未知的 fontWeight）返回带字段信息的 400。
func bindRecord(c *gin.Context, rec *layout.TemplateRecord) bool {
	if err := c.ShouldBindJSON(rec); err != nil {
		var validationErr *layout.ValidationError
		if errors.As(err, &validationErr) {
			ValidationFailed(c, validationErr)
			return false
		}
		BadRequest(c, err.Error())
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体。
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		BadRequest(c, err.Error())
		return false
	}
	return true
}
