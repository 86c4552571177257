// Package websocket pushes marker events to connected browsers. Clients
// subscribe to topics and receive every event emitted on those topics for
// their own tenant.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/bodymap/internal/platform/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ClientMessage is an inbound subscription request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Reply acknowledges a ClientMessage.
type Reply struct {
	Type     string   `json:"type"`
	Topics   []string `json:"topics,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// TopicFilter reports whether clients may subscribe to topic.
type TopicFilter func(topic string) bool

// Client is a single connection. Tenant is fixed at connect time.
type Client struct {
	ID     string
	Tenant string
	Topics []string
	Send   chan []byte
}

func NewClient(tenant string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		Tenant: tenant,
		Topics: []string{},
		Send:   make(chan []byte, sendBuffer),
	}
}

// Hub tracks clients and their topic subscriptions. It is an events.Sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	allow   TopicFilter
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		allow:   func(string) bool { return true },
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// SetTopicFilter restricts which topics clients may subscribe to.
func (h *Hub) SetTopicFilter(f TopicFilter) {
	if f == nil {
		f = func(string) bool { return true }
	}
	h.mu.Lock()
	h.allow = f
	h.mu.Unlock()
}

// Register adds a client and subscribes it to its initial topics. Topics
// the filter rejects are dropped.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	initial := client.Topics
	client.Topics = make([]string, 0, len(initial))
	h.subscribeLocked(client, initial)
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client and returns the ones the
// filter rejected.
func (h *Hub) Subscribe(client *Client, topics []string) (rejected []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked(client, topics)
}

func (h *Hub) subscribeLocked(client *Client, topics []string) (rejected []string) {
	for _, topic := range topics {
		if !h.allow(topic) {
			rejected = append(rejected, topic)
			continue
		}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.clients[topic][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
	return rejected
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, topics)
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	removeSet := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		removeSet[topic] = struct{}{}
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage applies a ClientMessage and builds the reply.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) Reply {
	switch msg.Action {
	case "subscribe":
		rejected := h.Subscribe(client, msg.Topics)
		return Reply{Type: "subscribed", Topics: h.topicsOf(client), Rejected: rejected}
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
		return Reply{Type: "unsubscribed", Topics: h.topicsOf(client)}
	default:
		return Reply{Type: "error", Error: "unknown action " + msg.Action}
	}
}

func (h *Hub) topicsOf(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), client.Topics...)
}

// Emit delivers e to subscribers of e.Topic. Events that carry a tenant only
// reach clients of that tenant. Slow clients whose buffer is full miss the
// event.
func (h *Hub) Emit(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for client := range h.clients[e.Topic] {
		if e.Tenant != "" && client.Tenant != e.Tenant {
			continue
		}
		select {
		case client.Send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn().Str("topic", e.Topic).Int("dropped", dropped).Msg("client buffers full")
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Handler: Echo endpoint for WebSocket connections
// ---------------------------------------------------------------------------

// TenantResolver returns the tenant a connecting request belongs to.
type TenantResolver func(c echo.Context) (string, error)

type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	tenant   TenantResolver
}

// NewHandler accepts upgrades from the listed origins. "*" allows any
// origin; requests without an Origin header are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string, tenant TenantResolver) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		tenant: tenant,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// RegisterRoutes mounts GET /ws on g behind m.
func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/ws", h.HandleConnect, m...)
}

// HandleConnect upgrades the request and starts the read and write pumps.
// Initial topics may be passed as ?topics=a,b.
func (h *Handler) HandleConnect(c echo.Context) error {
	tenant := ""
	if h.tenant != nil {
		t, err := h.tenant(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		tenant = t
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		return nil
	}

	client := NewClient(tenant)
	if raw := c.QueryParam("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				client.Topics = append(client.Topics, t)
			}
		}
	}
	h.hub.Register(client)
	h.hub.logger.Debug().Str("client_id", client.ID).Str("tenant", tenant).Msg("client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		h.hub.logger.Debug().Str("client_id", client.ID).Msg("client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var reply Reply
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			reply = Reply{Type: "error", Error: "malformed message"}
		} else {
			reply = h.hub.ProcessMessage(client, msg)
		}
		if !h.reply(client, reply) {
			return
		}
	}
}

// reply queues r on the client's Send channel. It reports false when the
// client is too slow to keep up.
func (h *Handler) reply(client *Client, r Reply) bool {
	data, err := json.Marshal(r)
	if err != nil {
		return true
	}
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	if _, ok := h.hub.all[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
