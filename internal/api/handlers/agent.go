// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/era-ai/era/internal/generator"
	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/orchestrator"
	"github.com/era-ai/era/internal/registry"
	"github.com/era-ai/era/pkg/types"
)

// AgentHandler handles agent creation and lookup.
type AgentHandler struct {
	orchestrator *orchestrator.Orchestrator
	store        *history.Store
	registry     *registry.Registry
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(orch *orchestrator.Orchestrator, store *history.Store, reg *registry.Registry) *AgentHandler {
	return &AgentHandler{
		orchestrator: orch,
		store:        store,
		registry:     reg,
	}
}

// Create runs a creation session. With ?async=true it returns the session
// ID at once and the session continues in the background.
func (h *AgentHandler) Create(c *gin.Context) {
	var req types.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("async") == "true" {
		id, err := h.orchestrator.RunAsync(c.Request.Context(), &req)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"session_id": id})
		return
	}

	sess, err := h.orchestrator.Run(c.Request.Context(), &req)
	if err != nil {
		body := gin.H{"error": err.Error()}
		if sess != nil {
			body["session"] = sess
		}
		c.JSON(statusFor(err), body)
		return
	}

	status := http.StatusOK
	if sess.Outcome == types.OutcomeSuccess {
		status = http.StatusCreated
	}
	c.JSON(status, sess)
}

// List returns the generated agents in the registry.
func (h *AgentHandler) List(c *gin.Context) {
	agents := []*types.UtilityEntry{}
	for _, e := range h.registry.List(true) {
		if e.Kind == types.UtilityGeneratedAgent {
			agents = append(agents, e)
		}
	}
	c.JSON(http.StatusOK, agents)
}

// Get returns an agent and the session that produced it.
func (h *AgentHandler) Get(c *gin.Context) {
	name := c.Param("name")

	sess, err := h.store.LatestSuccess(name)
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"session": sess}
	if entry, ok := h.registry.Load(false).Agent(name); ok {
		body["agent"] = entry
	}
	c.JSON(http.StatusOK, body)
}

// Preview generates code once without running or storing it.
func (h *AgentHandler) Preview(c *gin.Context) {
	var req types.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preview, err := h.orchestrator.Preview(c.Request.Context(), &req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidName), errors.Is(err, orchestrator.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrAgentExists):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrHistoryUnavailable):
		return http.StatusServiceUnavailable
	case generator.IsExtractionError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
