package api

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"voucherDesk/internal/layout"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
)

// TemplateService 由 templates.Service 实现。
type TemplateService interface {
	List(ctx context.Context, filter templates.ListFilter) ([]templates.Template, error)
	Get(ctx context.Context, id int64) (*templates.Template, error)
	GetActive(ctx context.Context, templateType layout.TemplateType) (*templates.Template, error)
	Create(ctx context.Context, rec layout.TemplateRecord) (*templates.Template, error)
	Update(ctx context.Context, id int64, rec layout.TemplateRecord) (*templates.Template, error)
	Delete(ctx context.Context, id int64) error
	Activate(ctx context.Context, id int64) (*templates.Template, error)
	Deactivate(ctx context.Context, id int64) (*templates.Template, error)
}

// RenderEnqueuer 由 tasks.Enqueuer 实现。
type RenderEnqueuer interface {
	EnqueueRender(ctx context.Context, p tasks.VoucherRenderPayload) (string, error)
}

// ObjectStorage 是 API 用到的 storage.Client 子集。
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	ReadObject(ctx context.Context, objectKey string, maxBytes int64) ([]byte, string, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, objectKey string, duration time.Duration, filename string) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeletePrefix(ctx context.Context, prefix string) error
}
