package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/domain/dispatch"
	"github.com/chatrelay/gateway/internal/domain/session"
	"github.com/chatrelay/gateway/internal/infrastructure/logging"
)

// SessionService is the slice of the session manager the HTTP layer needs.
type SessionService interface {
	Send(ctx context.Context, tenantID, number, body string) (queued bool, err error)
	SendBulk(ctx context.Context, tenantID string, recipients []dispatch.Recipient) (*dispatch.BulkResult, error)
	Status(tenantID string) session.Status
	Logout(ctx context.Context, tenantID string) error
	Stats() session.Stats
}

// Handlers serves the messaging API.
type Handlers struct {
	sessions SessionService
	logger   *logging.Logger
	started  time.Time
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(sessions SessionService, logger *logging.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		logger:   logger,
		started:  time.Now(),
	}
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "chatrelay-gateway",
		"status":  "running",
	})
}

// Health reports liveness plus a session summary.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.sessions.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"uptime":   time.Since(h.started).String(),
		"sessions": stats.Sessions,
		"ready":    stats.Ready,
	})
}

type sendRequest struct {
	ClientID string `json:"clientId"`
	Number   string `json:"number"`
	Message  string `json:"message"`
}

// SendMessage delivers a single message, queueing it when the tenant's
// session is not ready yet.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" || req.Number == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	queued, err := h.sessions.Send(c.Request.Context(), req.ClientID, req.Number, req.Message)
	if err != nil {
		h.logger.Error("send failed",
			zap.String("tenant_id", req.ClientID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to send message",
			"details": err.Error(),
		})
		return
	}
	if queued {
		c.JSON(http.StatusAccepted, gin.H{
			"success": false,
			"queued":  true,
			"message": "Client is not ready yet. Message queued.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Message sent",
	})
}

type bulkRequest struct {
	ClientID   string               `json:"clientId"`
	Recipients []dispatch.Recipient `json:"recipients"`
}

// durationJSON reports a duration in whole seconds and two-decimal minutes,
// the shape bulk callers consume.
func durationJSON(d time.Duration) gin.H {
	seconds := int(d.Round(time.Second).Seconds())
	return gin.H{
		"seconds": seconds,
		"minutes": fmt.Sprintf("%.2f", d.Minutes()),
	}
}

// SendBulk fans a message list out in paced batches and reports a full
// per-recipient accounting.
func (h *Handlers) SendBulk(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
		return
	}

	result, err := h.sessions.SendBulk(c.Request.Context(), req.ClientID, req.Recipients)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoRecipients) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing parameters"})
			return
		}
		h.logger.Error("bulk send failed",
			zap.String("tenant_id", req.ClientID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to send bulk messages",
			"details": err.Error(),
		})
		return
	}

	failed := result.Failed
	if failed == nil {
		failed = []dispatch.Failure{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"total":         result.Total,
		"successCount":  result.SuccessCount,
		"failedCount":   len(failed),
		"failedNumbers": failed,
		"estimatedTime": durationJSON(result.Estimated),
		"actualTime":    durationJSON(result.Elapsed),
	})
}

// ClientStatus reports whether a tenant's session can send right now.
func (h *Handlers) ClientStatus(c *gin.Context) {
	tenantID := c.Query("clientId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing clientId parameter"})
		return
	}

	status := h.sessions.Status(tenantID)
	if !status.Ready {
		c.JSON(http.StatusOK, gin.H{
			"ready":      false,
			"clientInfo": nil,
			"message":    "Client is not ready",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ready": true,
		"clientInfo": gin.H{
			"name":     status.Info.PushName,
			"number":   status.Info.User,
			"platform": status.Info.Platform,
		},
		"message": "Client is ready",
	})
}

// Logout tears a tenant's session down, clearing its queue and stored
// snapshot.
func (h *Handlers) Logout(c *gin.Context) {
	tenantID := c.Query("clientId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing clientId parameter"})
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Client session not found",
			})
			return
		}
		h.logger.Error("logout failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to logout client",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Client logged out successfully",
	})
}
