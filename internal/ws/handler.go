package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"lookup_engine/internal/logbus"
)

const (
	writeTimeout = 5 * time.Second
	pingPeriod   = 30 * time.Second
)

// Handler 把总线上的日志、结果与运行状态实时推给浏览器。
// 连接建立时先回放缓冲区里的历史消息。
type Handler struct {
	bus          *logbus.Bus
	allowOrigins []string
	upgrader     websocket.Upgrader
}

func NewHandler(bus *logbus.Bus, allowOrigins []string) *Handler {
	h := &Handler{
		bus:          bus,
		allowOrigins: allowOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, msg := range h.bus.Snapshot() {
		if !writeMessage(conn, msg) {
			return
		}
	}

	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	// 只读到对端关闭，客户端不发业务消息
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !writeMessage(conn, msg) {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg logbus.Message) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg) == nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
