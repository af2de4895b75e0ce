package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksnap/oksnap/middleware"
	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/utils"
)

// IdentifyController runs the scan flow: quota consumption, image
// validation, vision identification.
type IdentifyController struct {
	ledger *services.QuotaLedger
	vision *services.Vision
}

func NewIdentifyController(ledger *services.QuotaLedger, vision *services.Vision) *IdentifyController {
	return &IdentifyController{ledger: ledger, vision: vision}
}

// Identify handles POST /api/identify. Quota is consumed before input
// validation; an invalid payload still burns a scan.
func (c *IdentifyController) Identify(ctx *gin.Context) {
	var req models.IdentifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(ctx, "invalid request body")
		return
	}

	userID := callerIdentity(ctx, req.UserID)
	ip := middleware.ClientIP(ctx)

	status := c.ledger.CheckAndConsume(ctx.Request.Context(), userID, ip)
	if !status.Allowed {
		message := "Oops! That's all your scans for today. Come back tomorrow for more food discoveries! 🌟"
		if status.Level == models.LevelGuest {
			message = "Oops! That's all the scans you get for today. Come back tomorrow, or sign up for a free account to get 5 scans per day! 🍽️"
		}
		ctx.JSON(http.StatusTooManyRequests, gin.H{
			"success":       false,
			"error":         utils.CodeScanLimitExceeded,
			"message":       message,
			"limitExceeded": true,
			"limit":         status.Limit,
			"remaining":     0,
			"level":         status.Level,
			"resetTime":     status.ResetTime,
		})
		return
	}

	if err := services.ValidateImageData(req.ImageData); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	if err := services.ValidateLanguage(req.TargetLanguage); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	if !c.vision.Configured() {
		utils.ConfigurationError(ctx, "OPENAI_API_KEY is not configured")
		return
	}

	ident, err := c.vision.IdentifyDish(ctx.Request.Context(), req.ImageData, req.TargetLanguage)
	if err != nil {
		if errors.Is(err, services.ErrVisionTimeout) {
			utils.UpstreamTimeout(ctx, "Request timeout. The image analysis took too long. Please try again with a smaller image.", err)
			return
		}
		utils.UpstreamError(ctx, "Failed to process image with AI service", err)
		return
	}

	remaining := c.ledger.PeekRemaining(ctx.Request.Context(), userID, ip)
	ctx.JSON(http.StatusOK, gin.H{
		"identification": ident,
		"dishData":       ident.ToDishData(req.TargetLanguage),
		"scanInfo": gin.H{
			"remaining": remaining.Remaining,
			"limit":     remaining.Limit,
			"level":     remaining.Level,
		},
	})
}
