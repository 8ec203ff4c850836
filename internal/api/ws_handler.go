package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"voucherDesk/internal/templates"
	"voucherDesk/internal/worker"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
	wsWriteWait    = 5 * time.Second
)

var errSubscriptionDone = errors.New("subscription done")

// WsHandler 把 worker 发布到 Redis 的模板通知（缩略图、打印件）转发给浏览器。
type WsHandler struct {
	redisClient    redis.UniversalClient
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器；allowedOrigins 为空时只允许同源。
func NewWsHandler(redisClient redis.UniversalClient, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// notifyFilter 选择转发给某个连接的通知。renderID 非空时只关心一次打印，
// 收到该次打印的终态消息后连接即可关闭。
type notifyFilter struct {
	templateID string
	renderID   string
	kind       string
}

func (f notifyFilter) match(payload []byte) (forward, final bool) {
	var msg worker.NotifyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return false, false
	}
	if msg.TemplateID != f.templateID {
		return false, false
	}
	if f.kind != "" && msg.Kind != f.kind {
		return false, false
	}
	if f.renderID != "" {
		if msg.RenderID != f.renderID {
			return false, false
		}
		return true, msg.Status != ""
	}
	return true, false
}

// GET /v1/ws?template_id=&render_id=&kind=
func (h *WsHandler) HandleConnection(c *gin.Context) {
	id, err := templates.ParseID(c.Query("template_id"))
	if err != nil {
		BadRequest(c, "invalid template id")
		return
	}
	filter := notifyFilter{
		templateID: templates.FormatID(id),
		renderID:   strings.TrimSpace(c.Query("render_id")),
		kind:       strings.TrimSpace(c.Query("kind")),
	}
	if filter.kind != "" && filter.kind != worker.NotifyKindPreview && filter.kind != worker.NotifyKindRender {
		BadRequest(c, "invalid kind")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.logger.With(
		slog.String("client_ip", c.ClientIP()),
		slog.String("template_id", filter.templateID),
	)

	// 先确认订阅生效再升级连接，客户端收到 101 之后发布的消息不会丢失。
	channel := worker.NotifyChannel(filter.templateID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error("subscribe redis channel failed", slog.Any("error", err))
		Error(c, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	errCh := make(chan error, 2)
	go readLoop(conn, errCh, cancel)
	go forwardLoop(ctx, conn, pubsub.Channel(), filter, errCh, cancel)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, errSubscriptionDone) {
			log.Info("websocket connection closed", slog.Any("error", err))
			return
		}
		log.Info("websocket connection closed")
	}
}

// readLoop 不处理客户端消息，只用于检测断开与维持 pong 超时。
func readLoop(conn *websocket.Conn, errCh chan<- error, cancel context.CancelFunc) {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			cancel()
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

// forwardLoop 是连接上唯一的写入方。
func forwardLoop(
	ctx context.Context,
	conn *websocket.Conn,
	messages <-chan *redis.Message,
	filter notifyFilter,
	errCh chan<- error,
	cancel context.CancelFunc,
) {
	defer cancel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				writeClose(conn, websocket.CloseGoingAway, "notification channel closed")
				errCh <- errors.New("pubsub channel closed")
				return
			}
			forward, final := filter.match([]byte(msg.Payload))
			if !forward {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				return
			}
			if final {
				writeClose(conn, websocket.CloseNormalClosure, "render finished")
				errCh <- errSubscriptionDone
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				return
			}
		}
	}
}
