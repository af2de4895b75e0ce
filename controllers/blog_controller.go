package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/storage"
	"github.com/oksnap/oksnap/utils"
)

// BlogController generates and serves published recipe blog posts.
type BlogController struct {
	vision    *services.Vision
	publisher *services.Publisher
}

func NewBlogController(vision *services.Vision, publisher *services.Publisher) *BlogController {
	return &BlogController{vision: vision, publisher: publisher}
}

type generateBlogRequest struct {
	DishData models.DishData `json:"dishData"`
}

// GenerateBlog handles POST /api/generate-blog. Publishing is idempotent per
// slug: a repeat request for an existing dish answers 200 with skipped:true
// and no model calls are made.
func (c *BlogController) GenerateBlog(ctx *gin.Context) {
	var req generateBlogRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.DishData.Name == "" {
		utils.BadRequest(ctx, "dishData with name is required")
		return
	}
	if c.publisher == nil {
		utils.ConfigurationError(ctx, "GitHub credentials not configured. Set GITHUB_TOKEN and GITHUB_REPO environment variables.")
		return
	}

	slug := utils.Slugify(req.DishData.Name)
	if err := utils.ValidateSlug(slug, "dish name"); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}

	// Cheap existence check before spending model tokens.
	exists, err := c.publisher.Exists(ctx.Request.Context(), slug)
	if err != nil {
		utils.UpstreamError(ctx, "Failed to check blog existence", err)
		return
	}
	if exists {
		ctx.JSON(http.StatusOK, gin.H{
			"success": true,
			"blogUrl": c.publisher.BlogURL(slug),
			"slug":    slug,
			"skipped": true,
			"message": "Blog already exists",
		})
		return
	}

	if !c.vision.Configured() {
		utils.ConfigurationError(ctx, "OPENAI_API_KEY is not configured")
		return
	}

	blogHTML, err := c.vision.GenerateBlogHTML(ctx.Request.Context(), req.DishData)
	if err != nil {
		utils.UpstreamError(ctx, "Failed to generate blog post", err)
		return
	}

	// Cover image is best effort; the post ships without one on failure.
	imageURL := c.vision.GenerateBlogImage(ctx.Request.Context(), req.DishData)

	result, err := c.publisher.Publish(ctx.Request.Context(), req.DishData, blogHTML, imageURL)
	if err != nil {
		if result != nil && result.IndexStale {
			// The page itself is live; only the recipe listing failed.
			// Report the failure, but hand back the URL so the caller
			// doesn't regenerate a post that already exists.
			utils.Sugar.Errorw("publish failed after blog file was created",
				"slug", result.Slug, "error", err, "request_id", ctx.GetString(utils.RequestIDKey))
			ctx.JSON(http.StatusBadGateway, gin.H{
				"success":    false,
				"error":      utils.CodeExternalService,
				"message":    "Blog post was published, but updating the recipe listing failed.",
				"blogUrl":    result.URL,
				"slug":       result.Slug,
				"indexStale": true,
			})
			return
		}
		utils.UpstreamError(ctx, "Failed to publish blog post", err)
		return
	}

	if result.Status == models.PublishCreated {
		utils.CacheInvalidate(recipesCacheKey)
	}

	resp := gin.H{
		"success": true,
		"blogUrl": result.URL,
		"slug":    result.Slug,
		"message": "Blog post created successfully!",
	}
	if result.ImageURL != "" {
		resp["imageUrl"] = result.ImageURL
	}
	if result.Status == models.PublishAlreadyExists {
		resp["skipped"] = true
		resp["message"] = "Blog already exists"
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetBlog serves the published page HTML for a slug.
func (c *BlogController) GetBlog(ctx *gin.Context) {
	slug := ctx.Param("slug")
	if err := utils.ValidateSlug(slug, "slug"); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	if c.publisher == nil {
		utils.ConfigurationError(ctx, "GitHub credentials not configured. Set GITHUB_TOKEN and GITHUB_REPO environment variables.")
		return
	}

	page, err := c.publisher.GetBlog(ctx.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			utils.NotFound(ctx, "blog post not found")
			return
		}
		utils.UpstreamError(ctx, "Failed to load blog post", err)
		return
	}
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// BlogExists reports whether a slug is already published.
func (c *BlogController) BlogExists(ctx *gin.Context) {
	slug := ctx.Param("slug")
	if err := utils.ValidateSlug(slug, "slug"); err != nil {
		utils.BadRequest(ctx, err.Error())
		return
	}
	if c.publisher == nil {
		utils.ConfigurationError(ctx, "GitHub credentials not configured. Set GITHUB_TOKEN and GITHUB_REPO environment variables.")
		return
	}

	exists, err := c.publisher.Exists(ctx.Request.Context(), slug)
	if err != nil {
		utils.UpstreamError(ctx, "Failed to check blog existence", err)
		return
	}
	resp := gin.H{"exists": exists, "slug": slug}
	if exists {
		resp["url"] = c.publisher.BlogURL(slug)
	}
	ctx.JSON(http.StatusOK, resp)
}
