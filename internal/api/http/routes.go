package http

import (
	"github.com/gin-gonic/gin"

	"github.com/chatrelay/gateway/internal/api/middleware"
)

// RegisterRoutes wires the messaging API onto the router. Single sends stay
// open so unattended senders can post before their session has minted a
// token; everything else requires the shared secret plus a Bearer token.
func (h *Handlers) RegisterRoutes(router *gin.Engine, secret string) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	msg := router.Group("/message")
	msg.POST("/send-message", h.SendMessage)

	authed := msg.Group("", middleware.RequireToken(secret))
	authed.POST("/send-bulk-message", h.SendBulk)
	authed.GET("/client-status", h.ClientStatus)
	authed.GET("/disconnect", h.Logout)
}
