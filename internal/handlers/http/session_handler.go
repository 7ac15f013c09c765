package http

import (
	"net/http"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	apperrors "streamcast/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reports how many transports a component currently
// holds open. The hubs and servers all satisfy it.
type ConnectionCounter interface {
	OpenConnections() int
}

type SessionHandler struct {
	registry    ports.SessionRegistry
	segmentRoot string
	counters    []ConnectionCounter
}

func NewSessionHandler(registry ports.SessionRegistry, segmentRoot string, counters ...ConnectionCounter) *SessionHandler {
	return &SessionHandler{
		registry:    registry,
		segmentRoot: segmentRoot,
		counters:    counters,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
	}

	router.Static("/live", h.segmentRoot)
	router.GET("/health", h.Health)
}

// ListSessions returns a descriptor per live session. Every source kind
// produces the same shape; the source field is the only difference.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	now := time.Now()
	sessions := h.registry.ListLive()

	descriptors := make([]domain.SessionDescriptor, 0, len(sessions))
	for _, s := range sessions {
		descriptors = append(descriptors, s.Descriptor(now))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": descriptors,
	})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))

	session, ok := h.registry.GetByID(id)
	if !ok {
		appErr := apperrors.FromDomain(domain.ErrStreamNotFound)
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session.Descriptor(time.Now()),
	})
}

// Health is a liveness probe reporting the open transport count across
// every serving surface.
func (h *SessionHandler) Health(c *gin.Context) {
	connections := 0
	for _, counter := range h.counters {
		connections += counter.OpenConnections()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connections,
	})
}
