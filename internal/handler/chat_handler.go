package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 连接由路径中的 token 鉴权
	},
}

// ChatHandler 负责处理 WebSocket 流式问答连接。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// chatMessage 客户端消息可以是纯文本问题，也可以是 {"question": "..."}。
type chatMessage struct {
	Question string `json:"question"`
}

func parseQuestion(message []byte) string {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var m chatMessage
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return m.Question
		}
	}
	return trimmed
}

// completionEvent 在回答流结束后发送，携带来源与置信度。
type completionEvent struct {
	Type              string         `json:"type"`
	Status            string         `json:"status"`
	Sources           []model.Source `json:"sources"`
	Confidence        string         `json:"confidence,omitempty"`
	DocumentsSearched *int           `json:"documents_searched,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Error             string         `json:"error,omitempty"`
	Timestamp         int64          `json:"timestamp"`
}

func (h *ChatHandler) authenticate(c *gin.Context) (*model.User, bool) {
	claims, err := h.jwtManager.VerifyKind(c.Param("token"), token.KindAccess)
	if err != nil {
		respond(c, http.StatusUnauthorized, "无效的 token", nil)
		return nil, false
	}
	revoked, err := h.userService.IsTokenRevoked(c.Request.Context(), claims.ID)
	if err != nil || revoked {
		respond(c, http.StatusUnauthorized, "token 已注销", nil)
		return nil, false
	}
	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		respond(c, http.StatusUnauthorized, "用户不存在", nil)
		return nil, false
	}
	return user, true
}

// Handle 处理一个传入的 WebSocket 连接，每条消息是一次跨文档提问。
func (h *ChatHandler) Handle(c *gin.Context) {
	user, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ChatHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[ChatHandler] WebSocket 连接已建立，用户: %s", user.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ChatHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		resp, err := h.chatService.StreamGlobal(c.Request.Context(), user, parseQuestion(message), conn)
		event := completionEvent{Type: "completion", Status: "finished", Sources: []model.Source{}, Timestamp: time.Now().UnixMilli()}
		if resp != nil {
			event.Sources = resp.Sources
			event.Confidence = resp.Confidence
			event.DocumentsSearched = resp.DocumentsSearched
			event.Reason = resp.Reason
		}
		if err != nil {
			_, code, _ := mapServiceError(err)
			log.Errorf("[ChatHandler] 处理流式响应失败: %v", err)
			event.Status = "error"
			event.Error = code
		}
		b, _ := json.Marshal(event)
		if werr := conn.WriteMessage(websocket.TextMessage, b); werr != nil {
			log.Warnf("[ChatHandler] 发送完成通知失败: %v", werr)
			return
		}
	}
}
