package handler

import (
	"net/http"

	"docuchat-go/internal/notify"
	"docuchat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// EventsHandler 通过 WebSocket 向客户端推送事件总线上的通知。
type EventsHandler struct {
	bus     *notify.Bus
	tracker *notify.TypingTracker
}

// NewEventsHandler 创建一个新的 EventsHandler。
func NewEventsHandler(bus *notify.Bus, tracker *notify.TypingTracker) *EventsHandler {
	return &EventsHandler{bus: bus, tracker: tracker}
}

// Handle 处理一个传入的 WebSocket 连接：先推送当前的输入状态快照，
// 之后把总线上的事件逐条转发，直到客户端断开。
func (h *EventsHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())

	events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(events)

	// 新连接先收到一份输入状态快照，避免等到下一次变更才同步
	if err := conn.WriteJSON(notify.Event{
		Type:    notify.EventTypeTyping,
		Payload: h.tracker.Snapshot(),
	}); err != nil {
		log.Warnf("推送初始快照失败: %v", err)
		return
	}

	// 读协程只用于感知客户端断开，收到的消息一律忽略
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Infof("WebSocket 连接已断开: %s", c.ClientIP())
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Warnf("向 WebSocket 写入事件失败: %v", err)
				return
			}
		}
	}
}
