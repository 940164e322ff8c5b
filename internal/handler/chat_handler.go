package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gongtu-rag-go/internal/answer"
	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/service"
	"gongtu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 处理会话管理、问答与 WebSocket 连接。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type createChatRequest struct {
	Title string `json:"title"`
}

// CreateChat 在项目下创建会话。标题可留空，首轮问答后自动派生。
func (h *ChatHandler) CreateChat(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}
	var req createChatRequest
	_ = c.ShouldBindJSON(&req)

	chat, err := h.chatService.CreateChat(projectID, req.Title)
	if err != nil {
		log.Errorf("[ChatHandler] 创建会话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建会话失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": chat, "message": "success"})
}

// ListChats 列出项目下的会话。
func (h *ChatHandler) ListChats(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}
	chats, err := h.chatService.ListChats(projectID)
	if err != nil {
		log.Errorf("[ChatHandler] 查询会话列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询会话列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": chats, "message": "success"})
}

// ListMessages 列出会话内全部消息。
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID := c.Param("chatId")
	messages, err := h.chatService.ListMessages(chatID)
	if errors.Is(err, service.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	if err != nil {
		log.Errorf("[ChatHandler] 查询消息失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询消息失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": messages, "message": "success"})
}

// ListModels 列出可选的模型后端。
func (h *ChatHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": answer.Models(), "message": "success"})
}

type askRequest struct {
	Content string `json:"content" binding:"required"`
	ModelID string `json:"modelId"`
}

// Ask 是 REST 形态的问答入口。
func (h *ChatHandler) Ask(c *gin.Context) {
	chatID := c.Param("chatId")
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	message, err := h.chatService.AnswerQuestion(c.Request.Context(), chatID, req.Content, req.ModelID)
	if errors.Is(err, service.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	if err != nil {
		log.Errorf("[ChatHandler] 问答失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": message, "message": "success"})
}

// wsQuestion 是 WebSocket 上行消息格式。
type wsQuestion struct {
	Content string `json:"content"`
	ModelID string `json:"modelId"`
}

// wsAnswer 是 WebSocket 下行消息格式。
type wsAnswer struct {
	Type      string           `json:"type"` // "answer" 或 "error"
	Content   string           `json:"content"`
	Citations []model.Citation `json:"citations"`
	Timestamp int64            `json:"timestamp"`
}

// Handle 处理一个传入的 WebSocket 连接，每条上行消息是一个问题。
func (h *ChatHandler) Handle(c *gin.Context) {
	chatID := c.Param("chatId")
	if _, err := h.chatService.GetChat(chatID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, chat: %s", chatID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var question wsQuestion
		if err := json.Unmarshal(raw, &question); err != nil || question.Content == "" {
			h.writeWS(conn, wsAnswer{Type: "error", Content: "无效的消息格式", Citations: []model.Citation{}})
			continue
		}

		message, err := h.chatService.AnswerQuestion(c.Request.Context(), chatID, question.Content, question.ModelID)
		if err != nil {
			log.Errorf("[ChatHandler] WebSocket 问答失败: %v", err)
			h.writeWS(conn, wsAnswer{Type: "error", Content: "问答失败，请稍后重试", Citations: []model.Citation{}})
			continue
		}

		h.writeWS(conn, wsAnswer{
			Type:      "answer",
			Content:   message.Content,
			Citations: message.Citations,
		})
	}
}

func (h *ChatHandler) writeWS(conn *websocket.Conn, payload wsAnswer) {
	payload.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
