package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/controllers"
	"github.com/oksnap/oksnap/middleware"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(ledger *services.QuotaLedger, vision *services.Vision, publisher *services.Publisher) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	scanController := controllers.NewScanController(ledger)
	identifyController := controllers.NewIdentifyController(ledger, vision)
	blogController := controllers.NewBlogController(vision, publisher)
	recipesController := controllers.NewRecipesController(publisher)
	configController := controllers.NewConfigController()

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(), middleware.OptionalIdentity())

	api.GET("/scan-limit", scanController.GetScanLimit)
	api.POST("/decrement-scan-count", scanController.DecrementScanCount)
	api.POST("/identify", identifyController.Identify)

	api.POST("/generate-blog", blogController.GenerateBlog)
	api.GET("/blogs/:slug", blogController.GetBlog)
	api.GET("/blog-exists/:slug", blogController.BlogExists)

	api.GET("/recipes-json", recipesController.GetRecipes)
	api.GET("/sync-recipes", recipesController.SyncRecipes)
	api.POST("/sync-recipes", recipesController.SyncRecipes)

	api.GET("/config", configController.GetConfig)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.NotFound(ctx, "api route not found")
			return
		}
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})

	r.NoMethod(func(ctx *gin.Context) {
		utils.ErrorEnvelope(ctx, http.StatusMethodNotAllowed, utils.CodeMethodNotAllowed, "method not allowed")
	})

	return r
}
