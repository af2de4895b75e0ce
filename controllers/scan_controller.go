package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksnap/oksnap/middleware"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/utils"
)

// ScanController exposes the daily quota ledger: status lookup and the ad
// recharge refund.
type ScanController struct {
	ledger *services.QuotaLedger
}

func NewScanController(ledger *services.QuotaLedger) *ScanController {
	return &ScanController{ledger: ledger}
}

// callerIdentity resolves the user ID with an explicit value taking priority
// over the JWT, matching clients that pass userId before they carry a token.
func callerIdentity(ctx *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return middleware.UserID(ctx)
}

// GetScanLimit reports remaining scans without consuming one. A pending
// login bonus is settled as a side effect when the caller is signed in.
func (c *ScanController) GetScanLimit(ctx *gin.Context) {
	userID := callerIdentity(ctx, ctx.Query("userId"))
	ip := middleware.ClientIP(ctx)

	status := c.ledger.PeekRemaining(ctx.Request.Context(), userID, ip)
	ctx.JSON(http.StatusOK, status)
}

type decrementRequest struct {
	UserID          string `json:"userId"`
	UserIP          string `json:"userIp"`
	DecrementAmount int    `json:"decrementAmount"`
}

// DecrementScanCount refunds scans after an ad recharge. The body may name
// the IP explicitly (mobile clients behind NAT), otherwise headers decide.
func (c *ScanController) DecrementScanCount(ctx *gin.Context) {
	var req decrementRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, "invalid request body")
		return
	}

	ip := req.UserIP
	if ip == "" {
		ip = middleware.ClientIP(ctx)
	}
	amount := req.DecrementAmount
	if amount == 0 {
		amount = 1
	}
	if amount < 0 {
		utils.BadRequest(ctx, "decrementAmount must be positive")
		return
	}

	result := c.ledger.Decrement(ctx.Request.Context(), callerIdentity(ctx, req.UserID), ip, amount)
	ctx.JSON(http.StatusOK, result)
}
