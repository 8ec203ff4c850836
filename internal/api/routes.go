package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"voucherDesk/internal/api/middleware"
	"voucherDesk/internal/editor"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/printtoken"
)

// Handlers 汇总所有路由处理器，由 cmd/api 组装。
type Handlers struct {
	Catalog   *CatalogHandler
	Templates *TemplateHandler
	Print     *PrintHandler
	Editor    *EditorHandler
	Assets    *AssetHandler
	Ws        *WsHandler
}

// Deps 是构建 Handlers 所需的依赖。
type Deps struct {
	Templates      TemplateService
	Catalog        *layout.Catalog
	Renders        RenderEnqueuer
	Storage        ObjectStorage
	Tokens         *printtoken.Service
	Editor         *editor.Manager
	Assets         *AssetHandler
	Redis          redis.UniversalClient
	PublicBaseURL  string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewHandlers(d Deps) (*Handlers, error) {
	var assets assetReader
	if d.Storage != nil {
		assets = d.Storage
	}
	printHandler, err := NewPrintHandler(d.Templates, d.Catalog, assets, d.Tokens)
	if err != nil {
		return nil, err
	}
	h := &Handlers{
		Catalog:   NewCatalogHandler(d.Catalog),
		Templates: NewTemplateHandler(d.Templates, d.Catalog, d.Renders, d.Storage, d.Tokens, d.PublicBaseURL),
		Print:     printHandler,
		Editor:    NewEditorHandler(d.Editor),
		Assets:    d.Assets,
	}
	if d.Redis != nil {
		h.Ws = NewWsHandler(d.Redis, d.Logger, d.AllowedOrigins)
	}
	return h, nil
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, h *Handlers, internalSecret string) {
	v1 := router.Group("/v1")
	{
		if h.Ws != nil {
			v1.GET("/ws", h.Ws.HandleConnection)
		}

		catalogGroup := v1.Group("/catalog")
		{
			catalogGroup.GET("/fields", h.Catalog.ListFields)
			catalogGroup.GET("/page-sizes", h.Catalog.ListPageSizes)
		}

		templateGroup := v1.Group("/templates")
		{
			templateGroup.GET("", h.Templates.ListTemplates)
			templateGroup.POST("", h.Templates.CreateTemplate)
			templateGroup.GET("/active/:type", h.Templates.GetActiveTemplate)
			templateGroup.GET("/:id", h.Templates.GetTemplate)
			templateGroup.PUT("/:id", h.Templates.UpdateTemplate)
			templateGroup.DELETE("/:id", h.Templates.DeleteTemplate)
			templateGroup.POST("/:id/activate", h.Templates.ActivateTemplate)
			templateGroup.POST("/:id/deactivate", h.Templates.DeactivateTemplate)
			templateGroup.POST("/:id/preview", h.Templates.PreviewTemplate)
			templateGroup.POST("/:id/print-link", h.Templates.CreatePrintLink)
			templateGroup.POST("/:id/render", h.Templates.RenderVoucher)
			templateGroup.GET("/:id/renders", h.Templates.ListRenders)
		}

		v1.GET("/print/:token", h.Print.PrintByToken)

		internalGroup := v1.Group("/internal")
		internalGroup.Use(middleware.InternalSecretMiddleware(internalSecret))
		{
			internalGroup.POST("/templates/:id/print-html", h.Print.GetPrintHTML)
		}

		sessionGroup := v1.Group("/editor/sessions")
		{
			sessionGroup.POST("", h.Editor.OpenSession)
			sessionGroup.GET("/:sid", h.Editor.GetSession)
			sessionGroup.PATCH("/:sid", h.Editor.UpdateSettings)
			sessionGroup.DELETE("/:sid", h.Editor.CloseSession)

			sessionGroup.POST("/:sid/elements", h.Editor.AddElement)
			sessionGroup.DELETE("/:sid/elements", h.Editor.ClearElements)
			sessionGroup.PATCH("/:sid/elements/:eid", h.Editor.UpdateElement)
			sessionGroup.DELETE("/:sid/elements/:eid", h.Editor.DeleteElement)
			sessionGroup.POST("/:sid/elements/:eid/duplicate", h.Editor.DuplicateElement)
			sessionGroup.POST("/:sid/elements/:eid/reorder", h.Editor.ReorderElement)
			sessionGroup.POST("/:sid/elements/:eid/nudge", h.Editor.NudgeElement)

			sessionGroup.POST("/:sid/select", h.Editor.SelectElement)
			sessionGroup.POST("/:sid/commands", h.Editor.DispatchCommand)
			sessionGroup.POST("/:sid/align-top", h.Editor.AlignTop)
			sessionGroup.POST("/:sid/distribute", h.Editor.Distribute)
			sessionGroup.POST("/:sid/preview", h.Editor.Preview)
			sessionGroup.POST("/:sid/save", h.Editor.Save)
			sessionGroup.POST("/:sid/reload", h.Editor.Reload)
		}

		if h.Assets != nil {
			assetGroup := v1.Group("/assets")
			{
				assetGroup.GET("", h.Assets.ListAssets)
				assetGroup.POST("/upload", h.Assets.UploadAsset)
				assetGroup.GET("/view", h.Assets.GetAssetURL)
			}
		}
	}
}
