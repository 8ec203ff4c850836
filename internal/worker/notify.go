package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 任务完成通知的类型。
const (
	NotifyKindPreview = "preview"
	NotifyKindRender  = "render"
)

// NotifyMessage 是通过 Redis Pub/Sub 转发给前端的统一消息。
// 注意：这里的字段名与前端解析保持一致。
type NotifyMessage struct {
	Status        string   `json:"status"`
	Kind          string   `json:"kind"`
	TemplateID    string   `json:"template_id"`
	RenderID      string   `json:"render_id,omitempty"`
	CorrelationID string   `json:"correlation_id"`
	URL           string   `json:"url,omitempty"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// NotifyChannel 返回某模板的通知频道。
func NotifyChannel(templateID string) string {
	return "template_notify:" + templateID
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func publishNotify(ctx context.Context, client publisher, msg NotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(msg.TemplateID)
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
