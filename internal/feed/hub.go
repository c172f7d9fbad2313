package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"qrcheckin/internal/domain"
)

const (
	MessageScanner = "scanner"
	MessageScan    = "scan"
	MessageCheckIn = "checkin"
	MessageError   = "error"

	clientBuffer = 16
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 512
)

// Message is the websocket frame sent to feed clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type errorData struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type scanData struct {
	Payload string `json:"payload"`
}

// Hub fans scanner and check-in events out to websocket clients. Clients that
// fall behind by more than clientBuffer messages are disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

func NewHub(allowedOrigins []string, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func (h *Hub) ScannerStateChanged(status domain.ScannerStatus) {
	h.Broadcast(MessageScanner, status)
}

func (h *Hub) Scanned(payload string) {
	h.Broadcast(MessageScan, scanData{Payload: payload})
}

func (h *Hub) CheckInSucceeded(result domain.CheckInResult) {
	h.Broadcast(MessageCheckIn, result)
}

func (h *Hub) CheckInFailed(code domain.ErrorCode, message string) {
	h.Broadcast(MessageError, errorData{Code: code, Message: message})
}

// Broadcast sends one message to every connected client without blocking.
func (h *Hub) Broadcast(messageType string, data any) {
	encoded, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", messageType).Msg("feed message encode failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- encoded:
		default:
			h.logger.Warn().Str("remote", c.remote).Msg("dropping slow feed client")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams messages until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("feed upgrade failed")
		return
	}

	c := &client{conn: conn, remote: conn.RemoteAddr().String(), send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump only watches for the peer going away; clients never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
