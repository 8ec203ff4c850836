package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voucherDesk/internal/layout"
)

// CatalogHandler 暴露字段字典与页面尺寸，供编辑器的选择器使用。
type CatalogHandler struct {
	catalog *layout.Catalog
}

func NewCatalogHandler(catalog *layout.Catalog) *CatalogHandler {
	if catalog == nil {
		catalog = layout.DefaultCatalog()
	}
	return &CatalogHandler{catalog: catalog}
}

// GET /v1/catalog/fields
func (h *CatalogHandler) ListFields(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.catalog.Fields()})
}

// GET /v1/catalog/page-sizes
func (h *CatalogHandler) ListPageSizes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.catalog.PageSizes()})
}
