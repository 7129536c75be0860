package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/pkg/types"
)

// SessionHandler serves stored creation sessions.
type SessionHandler struct {
	store *history.Store
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store *history.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// List returns sessions matching the query filter.
func (h *SessionHandler) List(c *gin.Context) {
	filter := &types.SessionFilter{AgentName: c.Query("agent")}
	for _, o := range c.QueryArray("outcome") {
		filter.Outcome = append(filter.Outcome, types.Outcome(o))
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := c.Query(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
				return
			}
			*dst = n
		}
	}

	sessions, err := h.store.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// Get returns one session with all attempts.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.store.Get(c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Code returns the stored final program of a successful session.
func (h *SessionHandler) Code(c *gin.Context) {
	code, err := h.store.Code(c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "code not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/javascript; charset=utf-8", []byte(code))
}
