package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/era-ai/era/internal/registry"
)

// UtilityHandler serves the utility registry.
type UtilityHandler struct {
	registry *registry.Registry
	onReload func(count int)
}

// NewUtilityHandler creates a new UtilityHandler. onReload, when set, is
// called after every reload with the number of entries.
func NewUtilityHandler(reg *registry.Registry, onReload func(count int)) *UtilityHandler {
	return &UtilityHandler{registry: reg, onReload: onReload}
}

// List returns registry entries; ?agents=false leaves out generated agents.
func (h *UtilityHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List(c.Query("agents") != "false"))
}

// Docs returns the documentation bundle given to the code generator.
func (h *UtilityHandler) Docs(c *gin.Context) {
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(h.registry.DocumentationBundle(c.Query("agents") != "false")))
}

// Reload rebuilds the registry from builtins and history.
func (h *UtilityHandler) Reload(c *gin.Context) {
	n := len(h.registry.Load(true).List(true))
	if h.onReload != nil {
		h.onReload(n)
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "utilities": n})
}
