package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer 把任务投递到 asynq 队列。
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueuePreview 投递缩略图任务。同一模板在短时间内的重复保存只保留一个待处理任务。
func (e *Enqueuer) EnqueuePreview(ctx context.Context, templateID int64) error {
	task, err := NewTemplatePreviewTask(strconv.FormatInt(templateID, 10), CorrelationIDFromContext(ctx))
	if err != nil {
		return fmt.Errorf("build preview task: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(3),
		asynq.Unique(30*time.Second),
	)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue preview task: %w", err)
	}
	return nil
}

// EnqueueRender 投递单据渲染任务并返回任务 ID。
func (e *Enqueuer) EnqueueRender(ctx context.Context, p VoucherRenderPayload) (string, error) {
	if p.CorrelationID == "" {
		p.CorrelationID = CorrelationIDFromContext(ctx)
	}
	task, err := NewVoucherRenderTask(p)
	if err != nil {
		return "", fmt.Errorf("build render task: %w", err)
	}
	info, err := e.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		return "", fmt.Errorf("enqueue render task: %w", err)
	}
	return info.ID, nil
}

type correlationKey struct{}

// WithCorrelationID 把请求关联 ID 放入 context，随任务一起投递。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext 返回 WithCorrelationID 写入的 ID，没有时为空。
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}
