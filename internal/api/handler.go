package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spritzapp/spritz/internal/account"
	"github.com/spritzapp/spritz/internal/analytics"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/invite"
	"github.com/spritzapp/spritz/internal/points"
	"github.com/spritzapp/spritz/internal/websocket"
	"github.com/spritzapp/spritz/pkg/logger"
)

// Handler wires the ledger services to the HTTP surface. All dependencies
// are injected; there is no package-level state.
type Handler struct {
	accounts  account.Service
	invites   invite.Service
	points    points.Service
	analytics analytics.Service
	ws        *websocket.Manager
}

func NewHandler(accounts account.Service, invites invite.Service, pointsSvc points.Service, analyticsSvc analytics.Service, ws *websocket.Manager) *Handler {
	return &Handler{
		accounts:  accounts,
		invites:   invites,
		points:    pointsSvc,
		analytics: analyticsSvc,
		ws:        ws,
	}
}

// Login handles POST /login.
func (h *Handler) Login(c *gin.Context) {
	var params account.LoginParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	result, err := h.accounts.TrackLogin(params)
	if err != nil {
		c.Error(err)
		return
	}

	if h.ws != nil {
		if err := h.ws.BroadcastLogin(params.Address, result.IsNewUser); err != nil {
			logger.Warn("Failed to broadcast login: %v", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

// GetUser handles GET /user/:address.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.accounts.GetUser(c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      user.Address,
		"username":     user.Username.String,
		"ensName":      user.EnsName.String,
		"walletType":   user.WalletType.String,
		"chain":        user.Chain.String,
		"loginCount":   user.LoginCount,
		"loginStreak":  user.LoginStreak,
		"isBanned":     user.IsBanned,
		"points":       user.Points,
		"inviteCount":  user.InviteCount,
		"referredBy":   user.ReferredBy.String,
		"messagesSent": user.MessagesSent,
		"friendsCount": user.FriendsCount,
		"createdAt":    user.CreatedAt,
	})
}

// GetPointsHistory handles GET /user/:address/points.
func (h *Handler) GetPointsHistory(c *gin.Context) {
	history, err := h.points.GetPointsHistory(c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}

	entries := make([]gin.H, len(history))
	for i, ph := range history {
		entries[i] = gin.H{
			"points":    ph.Points,
			"reason":    ph.Reason,
			"timestamp": ph.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, entries)
}

// EnsureInvites handles POST /user/:address/invites.
func (h *Handler) EnsureInvites(c *gin.Context) {
	codes, err := h.invites.EnsureInviteCodes(c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

// ListInvites handles GET /user/:address/invites.
func (h *Handler) ListInvites(c *gin.Context) {
	codes, err := h.invites.ListInviteCodes(c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]gin.H, len(codes))
	for i, ic := range codes {
		entry := gin.H{
			"code":      ic.Code,
			"createdAt": ic.CreatedAt,
		}
		if ic.UsedBy.Valid {
			entry["usedBy"] = ic.UsedBy.String
			entry["usedAt"] = ic.UsedAt.Time
		}
		out[i] = entry
	}
	c.JSON(http.StatusOK, out)
}

type redeemRequest struct {
	Code    string `json:"code"`
	Address string `json:"address"`
}

// RedeemInvite handles POST /invite/redeem. An already-used code is an
// informational non-success, not an error.
func (h *Handler) RedeemInvite(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	result, err := h.invites.RedeemAny(req.Code, req.Address)
	if err != nil {
		c.Error(err)
		return
	}

	if result.Success && h.ws != nil {
		if err := h.ws.BroadcastInviteRedeemed(result.Inviter, req.Address); err != nil {
			logger.Warn("Failed to broadcast invite redemption: %v", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

type awardRequest struct {
	Address  string `json:"address"`
	Points   int64  `json:"points"`
	Reason   string `json:"reason"`
	ClaimKey string `json:"claimKey,omitempty"`
}

// AwardPoints handles POST /points/award (admin only). Duplicate claims
// return alreadyClaimed rather than failing.
func (h *Handler) AwardPoints(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	result, err := h.points.AwardPoints(req.Address, req.Points, req.Reason, req.ClaimKey)
	if err != nil {
		c.Error(err)
		return
	}

	if result.Success && h.ws != nil {
		if err := h.ws.BroadcastPointsUpdate(req.Address, req.Points, req.Reason); err != nil {
			logger.Warn("Failed to broadcast points update: %v", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

type claimRequest struct {
	Address string `json:"address"`
}

// ClaimDaily handles POST /points/daily-claim.
func (h *Handler) ClaimDaily(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	result, err := h.points.ClaimDailyPoints(req.Address)
	if err != nil {
		c.Error(err)
		return
	}

	if result.Success && h.ws != nil {
		if err := h.ws.BroadcastPointsUpdate(req.Address, result.PointsAwarded, points.ReasonDailyBonus); err != nil {
			logger.Warn("Failed to broadcast daily bonus: %v", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

type eventRequest struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Delta   int64  `json:"delta,omitempty"`
}

// TrackEvent handles POST /events.
func (h *Handler) TrackEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	eventType, err := analytics.ParseEventType(req.Type)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.analytics.TrackEvent(analytics.Event{
		Type:    eventType,
		Address: req.Address,
		Delta:   req.Delta,
	}); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetLeaderboard handles GET /leaderboard.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.Error(&errors.ValidationError{Field: "limit", Message: "must be a number between 1 and 100"})
			return
		}
		limit = parsed
	}

	leaderboard, err := h.points.GetLeaderboard(limit)
	if err != nil {
		c.Error(err)
		return
	}

	entries := make([]gin.H, len(leaderboard))
	for i, entry := range leaderboard {
		entries[i] = gin.H{
			"address":  entry.Address,
			"username": entry.Username.String,
			"points":   entry.Points,
		}
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// GetAnalytics handles GET /admin/analytics (admin only).
func (h *Handler) GetAnalytics(c *gin.Context) {
	report, err := h.analytics.ComputeAnalytics(c.Query("period"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type adminInviteRequest struct {
	Code      string     `json:"code,omitempty"`
	MaxUses   int        `json:"maxUses"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreateAdminInvite handles POST /admin/invite-codes (admin only). The
// creator is the authenticated admin.
func (h *Handler) CreateAdminInvite(c *gin.Context) {
	var req adminInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	creator := c.GetString(adminAddressKey)
	created, err := h.invites.CreateAdminInvite(req.Code, req.MaxUses, req.ExpiresAt, creator)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":     created.Code,
		"maxUses":  created.MaxUses,
		"isActive": created.IsActive,
	})
}

type banRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason,omitempty"`
}

// BanUser handles POST /admin/ban (admin only).
func (h *Handler) BanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	if err := h.accounts.BanUser(req.Address, req.Reason); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnbanUser handles POST /admin/unban (admin only).
func (h *Handler) UnbanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&errors.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	if err := h.accounts.UnbanUser(req.Address); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
