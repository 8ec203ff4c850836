package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"voucherDesk/internal/layout"
)

// DocumentRenderer 由 pdf.Generator 实现。
type DocumentRenderer interface {
	PDF(ctx context.Context, htmlContent string, page layout.Dimensions) ([]byte, error)
	Screenshot(ctx context.Context, htmlContent string, page layout.Dimensions, quality int) ([]byte, error)
}

// ObjectStorage 是 worker 用到的 storage.Client 子集。
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, objectKey string, duration time.Duration, filename string) (string, error)
}

// PrintSource 由 PrintClient 实现。
type PrintSource interface {
	Fetch(ctx context.Context, templateID string, req PrintRequest, correlationID string) (*PrintDocument, error)
}

// PreviewRecorder 由 templates.Service 实现。
type PreviewRecorder interface {
	SetPreview(ctx context.Context, id int64, objectKey, url string) error
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

// isTemplateGone 判断内部接口是否报告模板已被删除；这种任务直接丢弃，不再重试。
func isTemplateGone(err error) bool {
	var statusErr *PrintStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
