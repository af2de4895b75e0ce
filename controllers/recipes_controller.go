package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/utils"
)

const recipesCacheKey = "oksnap:recipes"

// RecipesController serves the recipe index and its rebuild endpoint.
type RecipesController struct {
	publisher *services.Publisher
}

func NewRecipesController(publisher *services.Publisher) *RecipesController {
	return &RecipesController{publisher: publisher}
}

// GetRecipes serves recipes.json, cached in Redis briefly so the listing
// page doesn't hit the content store on every load.
func (c *RecipesController) GetRecipes(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(recipesCacheKey); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}

	if c.publisher == nil {
		utils.ConfigurationError(ctx, "GitHub credentials not configured. Set GITHUB_TOKEN and GITHUB_REPO environment variables.")
		return
	}

	recipes, err := c.publisher.Index(ctx.Request.Context())
	if err != nil {
		utils.UpstreamError(ctx, "Failed to load recipe index", err)
		return
	}

	b, err := json.Marshal(recipes)
	if err != nil {
		utils.InternalError(ctx, "Failed to encode recipe index", err)
		return
	}
	utils.CacheSetBytes(recipesCacheKey, b, 0)
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
}

// SyncRecipes rebuilds recipes.json from the blog files actually published,
// recovering a stale index after partial publish failures.
func (c *RecipesController) SyncRecipes(ctx *gin.Context) {
	if c.publisher == nil {
		utils.ConfigurationError(ctx, "GitHub credentials not configured. Set GITHUB_TOKEN and GITHUB_REPO environment variables.")
		return
	}

	count, err := c.publisher.RebuildIndex(ctx.Request.Context())
	if err != nil {
		utils.UpstreamError(ctx, "Failed to rebuild recipe index", err)
		return
	}
	utils.CacheInvalidate(recipesCacheKey)

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   count,
		"message": "Recipe index rebuilt",
	})
}
