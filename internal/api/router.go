package api

import (
	"github.com/gin-gonic/gin"

	"github.com/spritzapp/spritz/internal/config"
)

// SetupRouter initializes the Gin router and sets up the routes
func SetupRouter(h *Handler, adminCfg config.AdminConfig) *gin.Engine {
	r := gin.Default()
	r.Use(ErrorMiddleware())

	// Account routes
	r.POST("/login", h.Login)
	r.GET("/user/:address", h.GetUser)
	r.GET("/user/:address/points", h.GetPointsHistory)

	// Invite routes
	r.GET("/user/:address/invites", h.ListInvites)
	r.POST("/user/:address/invites", h.EnsureInvites)
	r.POST("/invite/redeem", h.RedeemInvite)

	// Points routes
	r.POST("/points/daily-claim", h.ClaimDaily)
	r.POST("/events", h.TrackEvent)
	r.GET("/leaderboard", h.GetLeaderboard)

	// Admin routes, gated on a wallet signature
	admin := r.Group("/admin", AdminAuthMiddleware(adminCfg))
	admin.GET("/analytics", h.GetAnalytics)
	admin.POST("/invite-codes", h.CreateAdminInvite)
	admin.POST("/points/award", h.AwardPoints)
	admin.POST("/ban", h.BanUser)
	admin.POST("/unban", h.UnbanUser)

	// WebSocket route
	r.GET("/ws", func(c *gin.Context) {
		h.ws.HandleWebSocket(c.Writer, c.Request)
	})

	return r
}
