package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"voucherDesk/internal/api/middleware"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/printtoken"
	"voucherDesk/internal/templates"
)

// PrintHandler 输出可打印的单据 HTML：公开的签名链接，以及只供 worker 调用的内部接口。
type PrintHandler struct {
	templates TemplateService
	builder   *printBuilder
	tokens    *printtoken.Service
}

func NewPrintHandler(svc TemplateService, catalog *layout.Catalog, assets assetReader, tokens *printtoken.Service) (*PrintHandler, error) {
	builder, err := newPrintBuilder(catalog, assets)
	if err != nil {
		return nil, err
	}
	return &PrintHandler{templates: svc, builder: builder, tokens: tokens}, nil
}

// GET /v1/print/:token
func (h *PrintHandler) PrintByToken(c *gin.Context) {
	log := middleware.LoggerFromContext(c)
	if h.tokens == nil {
		NotFound(c, "print link not found")
		return
	}
	claims, err := h.tokens.Parse(c.Param("token"))
	if err != nil {
		log.Info("reject print token", slog.Any("error", err))
		Error(c, http.StatusUnauthorized, "print link invalid or expired")
		return
	}
	id, err := templates.ParseID(claims.TemplateID)
	if err != nil {
		Error(c, http.StatusUnauthorized, "print link invalid or expired")
		return
	}

	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err, "failed to load template")
		return
	}
	doc, err := h.builder.build(c.Request.Context(), log, tmpl, claims.Data, claims.Sample)
	if err != nil {
		respondError(c, log, err, "failed to render print html")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

type internalPrintRequest struct {
	Data   map[string]string `json:"data"`
	Sample bool              `json:"sample"`
}

// POST /v1/internal/templates/:id/print-html
// 返回 {html, page, missingFields}，worker 据此调用无头浏览器。
func (h *PrintHandler) GetPrintHTML(c *gin.Context) {
	id, ok := templateIDParam(c)
	if !ok {
		return
	}
	var req internalPrintRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	log := middleware.LoggerFromContext(c)

	tmpl, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			log.Warn("print html requested for missing template", slog.Int64("template_id", id))
		}
		respondError(c, log, err, "failed to load template")
		return
	}
	doc, err := h.builder.build(c.Request.Context(), log, tmpl, req.Data, req.Sample)
	if err != nil {
		respondError(c, log, err, "failed to render print html")
		return
	}
	c.JSON(http.StatusOK, doc)
}
