package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"voucherDesk/internal/errcode"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
)

const (
	previewQuality    = 80
	previewPresignTTL = 7 * 24 * time.Hour
)

// TemplatePreviewHandler 负责模板缩略图生成任务：用示例数据渲染模板并截图。
type TemplatePreviewHandler struct {
	prints    PrintSource
	renderer  DocumentRenderer
	storage   ObjectStorage
	previews  PreviewRecorder
	publisher publisher
	logger    *slog.Logger
}

func NewTemplatePreviewHandler(
	prints PrintSource,
	renderer DocumentRenderer,
	storageClient ObjectStorage,
	previews PreviewRecorder,
	redisClient publisher,
	logger *slog.Logger,
) *TemplatePreviewHandler {
	return &TemplatePreviewHandler{
		prints:    prints,
		renderer:  renderer,
		storage:   storageClient,
		previews:  previews,
		publisher: redisClient,
		logger:    logger,
	}
}

func (h *TemplatePreviewHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.TemplatePreviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal template preview payload failed", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	templateID, err := templates.ParseID(payload.TemplateID)
	if err != nil {
		log.Error("invalid template id in preview payload", slog.String("template_id", payload.TemplateID))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("template_id", payload.TemplateID),
		slog.String("correlation_id", payload.CorrelationID),
	)
	log.Info("Starting template preview generation task...")

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := NotifyMessage{
			Status:        "error",
			Kind:          NotifyKindPreview,
			TemplateID:    payload.TemplateID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := publishNotify(ctx, h.publisher, notify); err != nil {
			log.Error("publish preview error notification failed", slog.Any("error", err))
		}
	}()

	doc, err := h.prints.Fetch(ctx, payload.TemplateID, PrintRequest{Sample: true}, payload.CorrelationID)
	if err != nil {
		if isTemplateGone(err) {
			log.Warn("template not found, skipping task")
			return nil
		}
		log.Error("fetch template print html failed", slog.Any("error", err))
		return err
	}

	previewBytes, err := h.renderer.Screenshot(ctx, doc.HTML, doc.Page, previewQuality)
	if err != nil {
		log.Error("capture template screenshot failed", slog.Any("error", err))
		return err
	}

	objectName := storage.TemplatePreviewKey(payload.TemplateID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(previewBytes), int64(len(previewBytes)), "image/jpeg"); err != nil {
		log.Error("upload template preview failed", slog.Any("error", err))
		return err
	}

	url, err := h.storage.GeneratePresignedURL(ctx, objectName, previewPresignTTL)
	if err != nil {
		log.Error("generate template preview url failed", slog.Any("error", err))
		return err
	}

	if err := h.previews.SetPreview(ctx, templateID, objectName, url); err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			log.Warn("template deleted during preview generation")
			return nil
		}
		log.Error("update template preview url failed", slog.Any("error", err))
		return err
	}

	notify := NotifyMessage{
		Status:        "completed",
		Kind:          NotifyKindPreview,
		TemplateID:    payload.TemplateID,
		CorrelationID: payload.CorrelationID,
		URL:           url,
		ErrorCode:     errcode.OK,
	}
	if err := publishNotify(ctx, h.publisher, notify); err != nil {
		log.Warn("publish preview notification failed", slog.Any("error", err))
	}

	log.Info("Template preview generation completed.")
	return nil
}
