package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"voucherDesk/internal/editor"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/templates"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// ValidationFailed 返回带字段信息的 400，前端据此高亮出错的输入。
func ValidationFailed(c *gin.Context, err *layout.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
		"code":  "validation_failed",
		"field": err.Field,
	})
}

var errElementNotFound = errors.New("element not found")

// respondError 把领域错误映射为 HTTP 状态；未识别的错误记录日志并返回 500。
func respondError(c *gin.Context, log *slog.Logger, err error, internalMsg string) {
	var validationErr *layout.ValidationError
	switch {
	case errors.As(err, &validationErr):
		ValidationFailed(c, validationErr)
	case errors.Is(err, templates.ErrInvalidID):
		BadRequest(c, "invalid template id")
	case errors.Is(err, templates.ErrNotFound):
		NotFound(c, "template not found")
	case errors.Is(err, editor.ErrSessionNotFound):
		NotFound(c, "editor session not found")
	case errors.Is(err, errElementNotFound):
		NotFound(c, "element not found")
	case errors.Is(err, editor.ErrNotSaved):
		Conflict(c, "template has not been saved yet")
	default:
		log.Error(internalMsg, slog.Any("error", err))
		Internal(c, internalMsg)
	}
}
