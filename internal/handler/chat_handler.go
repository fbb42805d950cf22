package handler

import (
	"net/http"

	"docuchat-go/internal/notify"
	"docuchat-go/internal/service"
	"docuchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 问答失败时返回给用户的统一文案，不向外泄露上游服务的细节。
const genericFailureResponse = "抱歉，暂时无法生成回答，请稍后再试。"

const defaultSessionID = "default"

// ChatHandler 负责处理问答与输入状态相关的 API 请求。
type ChatHandler struct {
	chatService service.ChatService
	tracker     *notify.TypingTracker
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService, tracker *notify.TypingTracker) *ChatHandler {
	return &ChatHandler{chatService: chatService, tracker: tracker}
}

type sendMessageRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"sessionId"`
}

// SendMessage 处理一条用户提问并返回检索增强的回答。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式错误"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = defaultSessionID
	}

	answer, err := h.chatService.Answer(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		// 上游故障降级为统一文案，细节只进日志
		log.Error("SendMessage: answer failed", err)
		c.JSON(http.StatusOK, gin.H{"response": genericFailureResponse})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": answer})
}

// History 返回某个会话的历史问答。
func (h *ChatHandler) History(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = defaultSessionID
	}

	history, err := h.chatService.GetHistory(c.Request.Context(), sessionID)
	if err != nil {
		log.Error("History: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取对话历史失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取对话历史成功",
		"data":    history,
	})
}

type typingRequest struct {
	Name   string `json:"name" binding:"required"`
	Typing *bool  `json:"typing" binding:"required"`
}

// Typing 更新某个名字的输入状态，状态经由事件总线广播给订阅者。
func (h *ChatHandler) Typing(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式错误"})
		return
	}

	h.tracker.SetTyping(req.Name, *req.Typing)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok"})
}
