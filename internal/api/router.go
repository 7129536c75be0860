// Package api provides the REST API for ERA.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/era-ai/era/internal/api/handlers"
	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/mcp"
	"github.com/era-ai/era/internal/orchestrator"
	"github.com/era-ai/era/internal/registry"
	"github.com/era-ai/era/pkg/types"
)

const broadcasterID = "api_broadcaster"

// Router holds all API dependencies and routes.
type Router struct {
	engine       *gin.Engine
	orchestrator *orchestrator.Orchestrator
	store        *history.Store
	registry     *registry.Registry
	mcpServer    *mcp.Server
	logger       *slog.Logger

	agents    *handlers.AgentHandler
	sessions  *handlers.SessionHandler
	utilities *handlers.UtilityHandler

	upgrader websocket.Upgrader

	// Each connection has its own write lock; gorilla connections allow a
	// single concurrent writer.
	wsClientsMu sync.RWMutex
	wsClients   map[*websocket.Conn]*sync.Mutex

	done chan struct{}
}

// NewRouter creates a new API router and starts broadcasting session events
// to WebSocket clients. Call Close to stop broadcasting.
func NewRouter(
	orch *orchestrator.Orchestrator,
	store *history.Store,
	reg *registry.Registry,
	mcpServer *mcp.Server,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		engine:       gin.New(),
		orchestrator: orch,
		store:        store,
		registry:     reg,
		mcpServer:    mcpServer,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		wsClients: make(map[*websocket.Conn]*sync.Mutex),
		done:      make(chan struct{}),
	}
	r.agents = handlers.NewAgentHandler(orch, store, reg)
	r.sessions = handlers.NewSessionHandler(store)
	r.utilities = handlers.NewUtilityHandler(reg, func(count int) {
		r.BroadcastMessage("registry_reloaded", gin.H{"utilities": count})
	})

	r.setupMiddleware()
	r.setupRoutes()

	go r.broadcastSessionEvents(orch.Events().Subscribe(broadcasterID))

	return r
}

func (r *Router) setupMiddleware() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	})

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	r.engine.Use(cors.New(config))
}

// setupRoutes configures all API routes.
func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"utilities": len(r.registry.List(true)),
		})
	})

	v1 := r.engine.Group("/api/v1")
	{
		agents := v1.Group("/agents")
		{
			agents.GET("", r.agents.List)
			agents.POST("", r.agents.Create)
			agents.GET("/:name", r.agents.Get)
		}
		v1.POST("/preview", r.agents.Preview)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", r.sessions.List)
			sessions.GET("/:id", r.sessions.Get)
			sessions.GET("/:id/code", r.sessions.Code)
		}

		utilities := v1.Group("/utilities")
		{
			utilities.GET("", r.utilities.List)
			utilities.GET("/docs", r.utilities.Docs)
			utilities.POST("/reload", r.utilities.Reload)
		}

		v1.Any("/mcp", r.handleMCP)
	}

	r.engine.GET("/ws", r.handleWebSocket)
}

// Handler returns the HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Close stops the event broadcast.
func (r *Router) Close() {
	r.orchestrator.Events().Unsubscribe(broadcasterID)
	<-r.done
}

func (r *Router) handleMCP(c *gin.Context) {
	if r.mcpServer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "MCP is disabled"})
		return
	}
	r.mcpServer.ServeHTTP(c.Writer, c.Request)
}

func (r *Router) handleWebSocket(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	writeMu := &sync.Mutex{}
	r.wsClientsMu.Lock()
	r.wsClients[conn] = writeMu
	r.wsClientsMu.Unlock()

	defer func() {
		r.wsClientsMu.Lock()
		delete(r.wsClients, conn)
		r.wsClientsMu.Unlock()
		conn.Close()
	}()

	names := []string{}
	for _, e := range r.registry.List(true) {
		names = append(names, e.Name)
	}
	r.send(conn, writeMu, types.WebSocketMessage{Type: "initial_utilities", Payload: names})

	// Clients may ask for a session snapshot while following its events.
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Action    string `json:"action"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Action {
		case "get_session":
			sess, err := r.store.Get(req.SessionID)
			if err != nil {
				r.send(conn, writeMu, types.WebSocketMessage{Type: "error", Payload: err.Error()})
				continue
			}
			r.send(conn, writeMu, types.WebSocketMessage{Type: "session", Payload: sess})
		}
	}
}

func (r *Router) broadcastSessionEvents(events <-chan *types.SessionEvent) {
	defer close(r.done)
	for event := range events {
		r.BroadcastMessage("session_event", event)
	}
}

// BroadcastMessage sends a message to all WebSocket clients.
func (r *Router) BroadcastMessage(msgType string, payload any) {
	msg := types.WebSocketMessage{
		Type:    msgType,
		Payload: payload,
	}

	r.wsClientsMu.RLock()
	defer r.wsClientsMu.RUnlock()

	for conn, writeMu := range r.wsClients {
		// A failed client is removed when its read loop ends.
		r.send(conn, writeMu, msg)
	}
}

func (r *Router) send(conn *websocket.Conn, writeMu *sync.Mutex, msg types.WebSocketMessage) {
	writeMu.Lock()
	defer writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		r.logger.Debug("websocket write failed", "type", msg.Type, "error", err)
	}
}
