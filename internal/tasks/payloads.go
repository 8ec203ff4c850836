package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeTemplatePreview = "template:preview"
	TypeVoucherRender   = "voucher:render"
)

// TemplatePreviewPayload 描述生成模板缩略图所需的信息。
type TemplatePreviewPayload struct {
	TemplateID    string `json:"template_id"`
	CorrelationID string `json:"correlation_id"`
}

// VoucherRenderPayload 描述用真实单据数据渲染一份 PDF。
type VoucherRenderPayload struct {
	TemplateID    string            `json:"template_id"`
	RenderID      string            `json:"render_id"`
	Data          map[string]string `json:"data"`
	CorrelationID string            `json:"correlation_id"`
}

// NewTemplatePreviewTask 构造缩略图任务。
func NewTemplatePreviewTask(templateID, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TemplatePreviewPayload{
		TemplateID:    templateID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTemplatePreview, payload), nil
}

// NewVoucherRenderTask 构造单据渲染任务。
func NewVoucherRenderTask(p VoucherRenderPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVoucherRender, payload), nil
}
