package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/internal/service"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/database"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stopTokenTTL bounds how long an issued stop token stays valid.
const stopTokenTTL = time.Hour

// ChatHandler serves the WebSocket chat endpoint.
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler creates a new ChatHandler instance.
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// GetStopToken issues the command token a client must present to stop a
// running generation. The token lives in Redis so any server instance can
// validate it.
func (h *ChatHandler) GetStopToken(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user"})
		return
	}

	cmdToken := "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	key := fmt.Sprintf("ws:stop-token:%d", user.ID)
	if err := database.RDB.Set(context.Background(), key, cmdToken, stopTokenTTL).Err(); err != nil {
		log.Errorf("failed to store stop token for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to issue stop token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"cmdToken": cmdToken}})
}

// wsMessage is the envelope of every client frame. A frame that is not valid
// JSON is treated as a bare ask starting a new session.
type wsMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	CmdToken  string `json:"_internal_cmd_token"`
}

// wsConn serializes writes; gorilla/websocket allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// SendFragment implements service.FragmentSink by framing each fragment as a
// chunk object.
func (w *wsConn) SendFragment(data []byte) error {
	return w.writeJSON(map[string]string{"chunk": string(data)})
}

// Handle runs one WebSocket session. Asks execute in a goroutine so the read
// loop stays free to receive a stop command mid-stream; one ask runs at a
// time per connection.
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "failed to resolve user", "data": nil})
		return
	}

	rawConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", err)
		return
	}
	defer rawConn.Close()
	conn := &wsConn{conn: rawConn}

	log.Infof("websocket connected, user: %s", claims.Username)

	var inFlight atomic.Bool
	var stop atomic.Bool

	for {
		_, message, err := rawConn.ReadMessage()
		if err != nil {
			log.Warnf("websocket read failed: %v", err)
			break
		}

		var msg wsMessage
		if json.Unmarshal(message, &msg) != nil || (msg.Type == "" && msg.Content == "") {
			msg = wsMessage{Type: "ask", Content: string(message)}
		}

		switch msg.Type {
		case "stop":
			key := fmt.Sprintf("ws:stop-token:%d", user.ID)
			stored, err := database.RDB.Get(context.Background(), key).Result()
			if err != nil || stored != msg.CmdToken {
				_ = conn.writeJSON(gin.H{"error": "invalid stop token"})
				continue
			}
			stop.Store(true)
			_ = conn.writeJSON(gin.H{
				"type":      "stop",
				"message":   "response stopped",
				"timestamp": time.Now().UnixMilli(),
			})

		case "ask", "":
			if !inFlight.CompareAndSwap(false, true) {
				_ = conn.writeJSON(gin.H{"error": "a response is already being generated"})
				continue
			}
			stop.Store(false)
			// Detached context: a dropped connection must not abort the turn,
			// the answer still has to reach history.
			go func(msg wsMessage) {
				defer inFlight.Store(false)
				h.runTurn(context.Background(), conn, user.ID, msg, stop.Load)
			}(msg)

		default:
			_ = conn.writeJSON(gin.H{"error": "unknown message type"})
		}
	}
}

func (h *ChatHandler) runTurn(ctx context.Context, conn *wsConn, userID uint, msg wsMessage, stopRequested func() bool) {
	result, err := h.chatService.StreamAnswer(ctx, userID, msg.SessionID, msg.Content, conn, stopRequested)
	if err != nil {
		log.Errorf("chat turn failed: %v", err)
		_ = conn.writeJSON(gin.H{"error": h.clientError(err)})
		return
	}

	_ = conn.writeJSON(gin.H{
		"type":       "completion",
		"status":     "finished",
		"sessionId":  result.Session.ID,
		"messageId":  result.Assistant.ID,
		"incomplete": result.Assistant.Incomplete,
		"timestamp":  time.Now().UnixMilli(),
	})
}

// clientError maps turn errors to safe client-facing text.
func (h *ChatHandler) clientError(err error) string {
	switch {
	case err == service.ErrEmptyPrompt:
		return "prompt must not be empty"
	case err == service.ErrSessionNotFound:
		return "session not found"
	default:
		return "the assistant is temporarily unavailable, please try again later"
	}
}
