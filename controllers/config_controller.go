// Package controllers holds the gin HTTP handlers. Handlers stay thin:
// parse, call a service, shape the response.
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksnap/oksnap/config"
)

// ConfigController serves the public runtime configuration the web client
// needs before it can make API calls.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetConfig returns environment-driven client configuration. Only values
// safe to expose belong here.
func (c *ConfigController) GetConfig(ctx *gin.Context) {
	cfg := config.Get()
	ctx.JSON(http.StatusOK, gin.H{
		"publicSiteUrl": cfg.PublicSiteURL,
		"apiBaseUrl":    cfg.APIBaseURL,
		"limits": gin.H{
			"guest": cfg.GuestDailyLimit,
			"free":  cfg.FreeDailyLimit,
		},
	})
}
