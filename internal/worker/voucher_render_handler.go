package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"voucherDesk/internal/errcode"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
)

const renderDownloadTTL = 24 * time.Hour

// VoucherRenderHandler 用真实单据数据渲染模板并导出 PDF。
type VoucherRenderHandler struct {
	prints    PrintSource
	renderer  DocumentRenderer
	storage   ObjectStorage
	publisher publisher
	logger    *slog.Logger
}

func NewVoucherRenderHandler(
	prints PrintSource,
	renderer DocumentRenderer,
	storageClient ObjectStorage,
	redisClient publisher,
	logger *slog.Logger,
) *VoucherRenderHandler {
	return &VoucherRenderHandler{
		prints:    prints,
		renderer:  renderer,
		storage:   storageClient,
		publisher: redisClient,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *VoucherRenderHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.VoucherRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("template_id", payload.TemplateID),
		slog.String("render_id", payload.RenderID),
	)
	log.Info("Starting voucher render task...")

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := NotifyMessage{
			Status:        "error",
			Kind:          NotifyKindRender,
			TemplateID:    payload.TemplateID,
			RenderID:      payload.RenderID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := publishNotify(ctx, h.publisher, notify); err != nil {
			log.Error("publish render error notification failed", slog.Any("error", err))
		}
	}()

	doc, err := h.prints.Fetch(ctx, payload.TemplateID, PrintRequest{Data: payload.Data}, payload.CorrelationID)
	if err != nil {
		if isTemplateGone(err) {
			log.Warn("template not found, skipping task")
			skipped := NotifyMessage{
				Status:        "skipped",
				Kind:          NotifyKindRender,
				TemplateID:    payload.TemplateID,
				RenderID:      payload.RenderID,
				CorrelationID: payload.CorrelationID,
				ErrorCode:     errcode.TemplateGone,
				ErrorMessage:  "تم حذف القالب قبل الطباعة",
			}
			if err := publishNotify(ctx, h.publisher, skipped); err != nil {
				log.Error("publish render skipped notification failed", slog.Any("error", err))
			}
			return nil
		}
		log.Error("fetch voucher print html failed", slog.Any("error", err))
		return err
	}

	pdfBytes, err := h.renderer.PDF(ctx, doc.HTML, doc.Page)
	if err != nil {
		log.Error("render voucher pdf failed", slog.Any("error", err))
		return err
	}

	objectName := storage.RenderKey(payload.TemplateID, payload.RenderID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	url, err := h.storage.GenerateDownloadURL(ctx, objectName, renderDownloadTTL, payload.RenderID+".pdf")
	if err != nil {
		log.Error("generate voucher download url failed", slog.Any("error", err))
		return err
	}

	notify := NotifyMessage{
		Status:        "completed",
		Kind:          NotifyKindRender,
		TemplateID:    payload.TemplateID,
		RenderID:      payload.RenderID,
		CorrelationID: payload.CorrelationID,
		URL:           url,
		ErrorCode:     errcode.OK,
	}
	if len(doc.MissingFields) > 0 {
		notify.ErrorCode = errcode.ResourceMissing
		notify.ErrorMessage = "بعض الحقول بدون بيانات وتمت طباعتها كعناصر نائبة"
		notify.MissingFields = doc.MissingFields
		log.Warn("voucher rendered with missing fields",
			slog.Int("missing_count", len(doc.MissingFields)),
			slog.Any("missing_fields", doc.MissingFields),
		)
	}
	if err := publishNotify(ctx, h.publisher, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Voucher render task completed successfully.")
	return nil
}
