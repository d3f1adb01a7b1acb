package vqa

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/vqa-lens/backend/internal/handler/apierror"
	vqaservice "github.com/zhouzirui/vqa-lens/backend/internal/service/vqa"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type inboundMessage struct {
	Type     string `json:"type"`
	Question string `json:"question"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket 在同一会话上进行多轮提问
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.CheckSession(r.Context(), sessionID); err != nil {
		apierror.Write(w, "ws", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go pingLoop(ctx, conn)

	// readLoop cancels ctx on disconnect, aborting an in-flight Ask.
	inbound := make(chan inboundMessage)
	go readLoop(ctx, cancel, conn, inbound)

	send(conn, outgoingMessage{Type: "connected", SessionID: sessionID})

	for {
		var msg inboundMessage
		select {
		case <-ctx.Done():
			return
		case msg = <-inbound:
		}

		switch msg.Type {
		case "ask":
			h.answer(ctx, conn, sessionID, msg.Question)
		default:
			send(conn, outgoingMessage{
				Type:    "error",
				Kind:    string(vqaservice.InvalidInput),
				Message: "unsupported message type: " + msg.Type,
			})
		}
	}
}

// readLoop 读取客户端消息，连接断开时取消 ctx
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- inboundMessage) {
	defer cancel()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) answer(ctx context.Context, conn *websocket.Conn, sessionID, question string) {
	answer, err := h.svc.Ask(ctx, sessionID, question)
	if err != nil {
		log.Printf("[ws] ask failed for session %s: %v", sessionID, err)
		send(conn, outgoingMessage{
			Type:    "error",
			Kind:    string(vqaservice.KindOf(err)),
			Message: apierror.Message(err),
		})
		return
	}
	send(conn, outgoingMessage{
		Type:      "answer",
		SessionID: sessionID,
		Question:  strings.TrimSpace(question),
		Answer:    answer,
	})
}

func send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write %s failed: %v", msg.Type, err)
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
