package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"voucherDesk/internal/api/middleware"
	"voucherDesk/internal/editor"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/metrics"
)

// EditorHandler 把编辑会话的每个操作暴露为 HTTP 接口，响应统一为最新的会话视图。
type EditorHandler struct {
	manager *editor.Manager
}

func NewEditorHandler(manager *editor.Manager) *EditorHandler {
	return &EditorHandler{manager: manager}
}

// mutate 在会话锁内执行 fn 并记录指标。fn 返回 false 表示空操作（例如重复删除），仍返回 200。
func (h *EditorHandler) mutate(c *gin.Context, op string, fn func(s *layout.EditorSession) (bool, error)) {
	changed := false
	view, err := h.manager.Apply(c.Request.Context(), c.Param("sid"), func(s *layout.EditorSession) error {
		var err error
		changed, err = fn(s)
		return err
	})
	if err != nil {
		metrics.ObserveEditorOperation(op, "error")
		respondError(c, middleware.LoggerFromContext(c), err, "failed to apply editor operation")
		return
	}
	result := "ok"
	if !changed {
		result = "noop"
	}
	metrics.ObserveEditorOperation(op, result)
	c.JSON(http.StatusOK, view)
}

// POST /v1/editor/sessions
func (h *EditorHandler) OpenSession(c *gin.Context) {
	var req editor.OpenRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	view, err := h.manager.Open(c.Request.Context(), req)
	if err != nil {
		metrics.ObserveEditorOperation("open", "error")
		respondError(c, middleware.LoggerFromContext(c), err, "failed to open editor session")
		return
	}
	metrics.ObserveEditorOperation("open", "ok")
	c.JSON(http.StatusCreated, view)
}

// GET /v1/editor/sessions/:sid
func (h *EditorHandler) GetSession(c *gin.Context) {
	view, err := h.manager.Get(c.Request.Context(), c.Param("sid"))
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to load editor session")
		return
	}
	c.JSON(http.StatusOK, view)
}

// DELETE /v1/editor/sessions/:sid
func (h *EditorHandler) CloseSession(c *gin.Context) {
	if err := h.manager.Close(c.Request.Context(), c.Param("sid")); err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to close editor session")
		return
	}
	metrics.ObserveEditorOperation("close", "ok")
	c.Status(http.StatusNoContent)
}

type settingsRequest struct {
	Name         *string              `json:"name"`
	TemplateType *layout.TemplateType `json:"templateType"`
	PageSize     *layout.PageSize     `json:"pageSize"`
	IsActive     *bool                `json:"isActive"`
}

// PATCH /v1/editor/sessions/:sid
// 修改模板名称、单据类型、页面尺寸或启用意图。
func (h *EditorHandler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.mutate(c, "settings", func(s *layout.EditorSession) (bool, error) {
		if req.TemplateType != nil {
			if err := s.SetTemplateType(*req.TemplateType); err != nil {
				return false, err
			}
		}
		if req.PageSize != nil {
			if err := s.SetPageSize(*req.PageSize); err != nil {
				return false, err
			}
		}
		if req.Name != nil {
			s.Rename(strings.TrimSpace(*req.Name))
		}
		if req.IsActive != nil {
			s.SetActive(*req.IsActive)
		}
		return true, nil
	})
}

type addElementRequest struct {
	Type     string `json:"type" binding:"required"`
	FieldKey string `json:"fieldKey"`
}

// POST /v1/editor/sessions/:sid/elements
func (h *EditorHandler) AddElement(c *gin.Context) {
	var req addElementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	kind, err := layout.ParseKind(req.Type)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to add element")
		return
	}
	h.mutate(c, "add_element", func(s *layout.EditorSession) (bool, error) {
		s.AddElement(kind, strings.TrimSpace(req.FieldKey))
		return true, nil
	})
}

// PATCH /v1/editor/sessions/:sid/elements/:eid
// 补丁中出现未知字段直接拒绝，避免拼写错误被静默忽略。
func (h *EditorHandler) UpdateElement(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequest(c, "failed to read request body")
		return
	}
	var patch layout.ElementPatch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		BadRequest(c, err.Error())
		return
	}
	elementID := c.Param("eid")
	h.mutate(c, "update_element", func(s *layout.EditorSession) (bool, error) {
		if !s.UpdateElement(elementID, patch) {
			return false, errElementNotFound
		}
		return !patch.Empty(), nil
	})
}

// DELETE /v1/editor/sessions/:sid/elements/:eid
// 重复删除为空操作。
func (h *EditorHandler) DeleteElement(c *gin.Context) {
	elementID := c.Param("eid")
	h.mutate(c, "delete_element", func(s *layout.EditorSession) (bool, error) {
		return s.DeleteElement(elementID), nil
	})
}

// POST /v1/editor/sessions/:sid/elements/:eid/duplicate
func (h *EditorHandler) DuplicateElement(c *gin.Context) {
	elementID := c.Param("eid")
	h.mutate(c, "duplicate_element", func(s *layout.EditorSession) (bool, error) {
		if _, ok := s.DuplicateElement(elementID); !ok {
			return false, errElementNotFound
		}
		return true, nil
	})
}

type reorderRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// POST /v1/editor/sessions/:sid/elements/:eid/reorder
// 已在最上层/最下层时为空操作。
func (h *EditorHandler) ReorderElement(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	dir, err := layout.ParseDirection(req.Direction)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to reorder element")
		return
	}
	elementID := c.Param("eid")
	h.mutate(c, "reorder_element", func(s *layout.EditorSession) (bool, error) {
		if _, ok := s.Element(elementID); !ok {
			return false, errElementNotFound
		}
		return s.Reorder(elementID, dir), nil
	})
}

type nudgeRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// POST /v1/editor/sessions/:sid/elements/:eid/nudge
// 移动后按当前页面尺寸夹紧。
func (h *EditorHandler) NudgeElement(c *gin.Context) {
	var req nudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	elementID := c.Param("eid")
	h.mutate(c, "nudge_element", func(s *layout.EditorSession) (bool, error) {
		page := s.PageBounds()
		if !s.Nudge(elementID, req.DX, req.DY, page.Width, page.Height) {
			return false, errElementNotFound
		}
		return true, nil
	})
}

// DELETE /v1/editor/sessions/:sid/elements
func (h *EditorHandler) ClearElements(c *gin.Context) {
	h.mutate(c, "clear_all", func(s *layout.EditorSession) (bool, error) {
		changed := len(s.Elements()) > 0
		s.ClearAll()
		return changed, nil
	})
}

type selectRequest struct {
	ElementID string `json:"elementId"`
}

// POST /v1/editor/sessions/:sid/select
// elementId 为空时清除选中。
func (h *EditorHandler) SelectElement(c *gin.Context) {
	var req selectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.mutate(c, "select", func(s *layout.EditorSession) (bool, error) {
		if !s.Select(req.ElementID) {
			return false, errElementNotFound
		}
		return true, nil
	})
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
	Fine    bool   `json:"fine"`
}

// POST /v1/editor/sessions/:sid/commands
// 键盘指令作用于当前选中元素；未选中时为空操作。
func (h *EditorHandler) DispatchCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	cmd, err := layout.ParseCommand(req.Command)
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to dispatch command")
		return
	}
	h.mutate(c, "command_"+string(cmd), func(s *layout.EditorSession) (bool, error) {
		return s.Dispatch(cmd, req.Fine), nil
	})
}

// POST /v1/editor/sessions/:sid/align-top
func (h *EditorHandler) AlignTop(c *gin.Context) {
	h.mutate(c, "align_top", func(s *layout.EditorSession) (bool, error) {
		s.AlignAllToTop()
		return len(s.Elements()) > 0, nil
	})
}

type distributeRequest struct {
	Axis  string  `json:"axis"`
	Start float64 `json:"start"`
	Gap   float64 `json:"gap"`
}

// POST /v1/editor/sessions/:sid/distribute
// axis 为 vertical（默认）或 horizontal。
func (h *EditorHandler) Distribute(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	axis := strings.ToLower(strings.TrimSpace(req.Axis))
	if axis != "" && axis != "vertical" && axis != "horizontal" {
		ValidationFailed(c, &layout.ValidationError{Field: "axis", Reason: "must be vertical or horizontal"})
		return
	}
	h.mutate(c, "distribute", func(s *layout.EditorSession) (bool, error) {
		if axis == "horizontal" {
			s.DistributeHorizontally(req.Start, req.Gap)
		} else {
			s.DistributeVertically(req.Start, req.Gap)
		}
		return len(s.Elements()) > 0, nil
	})
}

type previewRequest struct {
	Data map[string]string `json:"data"`
}

// POST /v1/editor/sessions/:sid/preview
// 未传 data 时使用字段字典的示例值；缺失的字段显示为占位符。
func (h *EditorHandler) Preview(c *gin.Context) {
	var req previewRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	sample := req.Data
	if sample == nil {
		sample = h.manager.Catalog().SampleData()
	}

	var (
		page  layout.Dimensions
		boxes []layout.DrawableBox
	)
	err := h.manager.Read(c.Request.Context(), c.Param("sid"), func(s *layout.EditorSession) error {
		page = s.PageBounds()
		boxes = s.RenderPreview(sample)
		return nil
	})
	if err != nil {
		respondError(c, middleware.LoggerFromContext(c), err, "failed to render preview")
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "boxes": boxes})
}

// POST /v1/editor/sessions/:sid/save
func (h *EditorHandler) Save(c *gin.Context) {
	result, err := h.manager.Save(c.Request.Context(), c.Param("sid"))
	if err != nil {
		metrics.ObserveEditorOperation("save", "error")
		respondError(c, middleware.LoggerFromContext(c), err, "failed to save template")
		return
	}
	metrics.ObserveEditorOperation("save", "ok")
	c.JSON(http.StatusOK, result)
}

// POST /v1/editor/sessions/:sid/reload
func (h *EditorHandler) Reload(c *gin.Context) {
	view, err := h.manager.Reload(c.Request.Context(), c.Param("sid"))
	if err != nil {
		metrics.ObserveEditorOperation("reload", "error")
		respondError(c, middleware.LoggerFromContext(c), err, "failed to reload template")
		return
	}
	metrics.ObserveEditorOperation("reload", "ok")
	c.JSON(http.StatusOK, view)
}
