package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/metrics"
	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/storage"
	"github.com/oksnap/oksnap/utils"
)

// maxIndexAttempts bounds the optimistic-concurrency loop on the recipes
// index. Two concurrent publishers conflict at most once each, so three
// attempts only fail under sustained contention or a broken store.
const maxIndexAttempts = 3

// Publisher writes blog artifacts to the content store, idempotently per
// slug: an existing artifact is never regenerated or overwritten. The recipes
// index is maintained alongside via a sha-guarded read-modify-write.
type Publisher struct {
	content  storage.ContentStore
	siteURL  string
	basePath string
	now      func() time.Time
}

// NewPublisher builds a publisher over the given content store.
func NewPublisher(content storage.ContentStore, cfg *config.AppConfig) *Publisher {
	return &Publisher{
		content:  content,
		siteURL:  strings.TrimRight(cfg.PublicSiteURL, "/"),
		basePath: strings.Trim(cfg.GitHubBasePath, "/"),
		now:      time.Now,
	}
}

func (p *Publisher) joinBase(rel string) string {
	if p.basePath == "" {
		return rel
	}
	return p.basePath + "/" + rel
}

func (p *Publisher) blogPath(slug string) string { return p.joinBase("blogs/" + slug + ".html") }
func (p *Publisher) indexPath() string           { return p.joinBase("recipes.json") }

// BlogURL is the public URL a published slug is served from.
func (p *Publisher) BlogURL(slug string) string {
	return p.siteURL + "/blogs/" + slug + ".html"
}

// Exists reports whether a blog artifact is already published for slug.
func (p *Publisher) Exists(ctx context.Context, slug string) (bool, error) {
	_, _, err := p.content.GetFile(ctx, p.blogPath(slug))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetBlog returns the published page HTML for slug.
func (p *Publisher) GetBlog(ctx context.Context, slug string) ([]byte, error) {
	data, _, err := p.content.GetFile(ctx, p.blogPath(slug))
	return data, err
}

// Publish stores the rendered blog page and upserts the recipes index.
//
// The check-then-create is racy by nature; the create itself is the real
// guard, since the store rejects creating a path that appeared in between
// and that rejection is mapped to alreadyExists. If the index write fails
// after all retries the call returns an error, but the artifact stays
// published and the result carries IndexStale: a live-but-unlisted post
// beats rolling back a deployed page, and RebuildIndex recovers the listing.
func (p *Publisher) Publish(ctx context.Context, dish models.DishData, blogHTML, imageURL string) (*models.PublishResult, error) {
	// A client that disconnects mid-publish must not cancel the store
	// writes: a page created without its index entry is exactly the
	// half-done state the retry loop exists to avoid.
	ctx = context.WithoutCancel(ctx)

	slug := utils.Slugify(dish.Name)
	if slug == "" {
		return nil, errors.New("dish name produces an empty slug")
	}

	exists, err := p.Exists(ctx, slug)
	if err != nil {
		metrics.Publishes.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("check blog existence: %w", err)
	}
	if exists {
		utils.Sugar.Infow("blog already exists, skipping generation", "slug", slug)
		metrics.Publishes.WithLabelValues(models.PublishAlreadyExists).Inc()
		return &models.PublishResult{
			Status: models.PublishAlreadyExists,
			URL:    p.BlogURL(slug),
			Slug:   slug,
		}, nil
	}

	page := p.renderBlogPage(dish, blogHTML, imageURL)
	err = p.content.PutFile(ctx, p.blogPath(slug), []byte(page), "", "Add blog post: "+dish.Name)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Someone published the same slug between the check and the create.
			utils.Sugar.Infow("blog created concurrently, treating as existing", "slug", slug)
			metrics.Publishes.WithLabelValues(models.PublishAlreadyExists).Inc()
			return &models.PublishResult{
				Status: models.PublishAlreadyExists,
				URL:    p.BlogURL(slug),
				Slug:   slug,
			}, nil
		}
		metrics.Publishes.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("create blog file: %w", err)
	}

	result := &models.PublishResult{
		Status:   models.PublishCreated,
		URL:      p.BlogURL(slug),
		Slug:     slug,
		ImageURL: imageURL,
	}

	entry := models.RecipeEntry{
		Slug:      slug,
		Title:     dish.Name,
		Name:      dish.Name,
		URL:       p.BlogURL(slug),
		CreatedAt: models.DayString(p.now()),
	}
	if err := p.upsertIndex(ctx, entry); err != nil {
		utils.Sugar.Errorw("recipes index update failed, blog published but unlisted",
			"slug", slug, "error", err)
		result.IndexStale = true
		metrics.Publishes.WithLabelValues("index_failed").Inc()
		return result, fmt.Errorf("blog published but index update failed: %w", err)
	}

	metrics.Publishes.WithLabelValues(models.PublishCreated).Inc()
	return result, nil
}

// upsertIndex inserts or replaces the entry for its slug in recipes.json.
// A stale sha from a concurrent writer triggers a fresh read-modify-write,
// re-applying the upsert against the new contents.
func (p *Publisher) upsertIndex(ctx context.Context, entry models.RecipeEntry) error {
	var lastErr error
	for attempt := 1; attempt <= maxIndexAttempts; attempt++ {
		recipes, sha, err := p.loadIndex(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		replaced := false
		for i := range recipes {
			if recipes[i].Slug == entry.Slug {
				recipes[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			// Newest first, matching how the site lists recipes.
			recipes = append([]models.RecipeEntry{entry}, recipes...)
		}

		data, err := json.MarshalIndent(recipes, "", "  ")
		if err != nil {
			return fmt.Errorf("encode recipes index: %w", err)
		}

		err = p.content.PutFile(ctx, p.indexPath(), data, sha, "Update recipes.json: Add "+entry.Title)
		if err == nil {
			utils.Sugar.Infow("recipes index updated", "slug", entry.Slug, "count", len(recipes), "attempt", attempt)
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("write recipes index: %w", err)
		}
		metrics.IndexRetries.Inc()
		utils.Sugar.Warnw("recipes index write conflicted, retrying with fresh sha",
			"slug", entry.Slug, "attempt", attempt)
		lastErr = err
	}
	return fmt.Errorf("update recipes index after %d attempts: %w", maxIndexAttempts, lastErr)
}

// loadIndex reads the current recipes index. A missing or unparseable file
// starts fresh rather than blocking publishes.
func (p *Publisher) loadIndex(ctx context.Context) ([]models.RecipeEntry, string, error) {
	data, sha, err := p.content.GetFile(ctx, p.indexPath())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []models.RecipeEntry{}, "", nil
		}
		return nil, "", fmt.Errorf("read recipes index: %w", err)
	}

	var recipes []models.RecipeEntry
	if err := json.Unmarshal(data, &recipes); err != nil {
		utils.Sugar.Warnw("recipes index is not valid JSON, resetting", "error", err)
		return []models.RecipeEntry{}, sha, nil
	}
	return recipes, sha, nil
}

// RebuildIndex regenerates recipes.json from the blog files actually in the
// store, recovering from a stale index after failed publishes.
func (p *Publisher) RebuildIndex(ctx context.Context) (int, error) {
	entries, err := p.content.ListDir(ctx, p.joinBase("blogs"))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("list blog directory: %w", err)
	}

	createdAt := models.DayString(p.now())
	recipes := make([]models.RecipeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" || !strings.HasSuffix(e.Name, ".html") {
			continue
		}
		slug := strings.TrimSuffix(e.Name, ".html")
		title := titleFromSlug(slug)
		recipes = append(recipes, models.RecipeEntry{
			Slug:      slug,
			Title:     title,
			Name:      title,
			URL:       p.BlogURL(slug),
			CreatedAt: createdAt,
		})
	}

	data, err := json.MarshalIndent(recipes, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode recipes index: %w", err)
	}

	for attempt := 1; attempt <= maxIndexAttempts; attempt++ {
		_, sha, err := p.content.GetFile(ctx, p.indexPath())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("read recipes index: %w", err)
		}
		err = p.content.PutFile(ctx, p.indexPath(), data, sha, fmt.Sprintf("Rebuild recipes.json (%d entries)", len(recipes)))
		if err == nil {
			return len(recipes), nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return 0, fmt.Errorf("write recipes index: %w", err)
		}
		metrics.IndexRetries.Inc()
	}
	return 0, fmt.Errorf("rebuild recipes index: conflict after %d attempts", maxIndexAttempts)
}

// Index returns the current recipes listing.
func (p *Publisher) Index(ctx context.Context) ([]models.RecipeEntry, error) {
	recipes, _, err := p.loadIndex(ctx)
	return recipes, err
}

func titleFromSlug(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "_", "-"), "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// renderBlogPage wraps the generated body HTML in the site page shell. The
// body is sanitized first since it comes straight from the language model.
func (p *Publisher) renderBlogPage(dish models.DishData, blogHTML, imageURL string) string {
	name := html.EscapeString(dish.Name)
	displayName := name
	if dish.NameKorean != "" {
		displayName = fmt.Sprintf("%s (%s)", name, html.EscapeString(dish.NameKorean))
	}

	var ogImage, featuredImage string
	if imageURL != "" {
		escaped := html.EscapeString(imageURL)
		ogImage = fmt.Sprintf(`<meta property="og:image" content="%s">`, escaped)
		featuredImage = fmt.Sprintf(`
            <div class="blog-featured-image">
                <img src="%s" alt="%s" style="width: 100%%; max-width: 800px; height: auto; border-radius: 12px; margin: 2rem auto; display: block; box-shadow: 0 4px 12px rgba(0, 0, 0, 0.1);">
            </div>`, escaped, displayName)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="description" content="Learn how to make %[1]s - Authentic Korean recipe with step-by-step instructions.">
    <meta name="keywords" content="%[2]s, Korean food, Korean recipe, %[3]s, Hansik">
    %[4]s
    <title>%[2]s Recipe - OK-Snap</title>
    <link rel="stylesheet" href="../styles.css">
</head>
<body>
    <header class="header">
        <div class="container">
            <div class="header-content">
                <h1 class="logo"><a href="../index.html" style="text-decoration: none; color: inherit;">OK-Snap</a></h1>
                <nav class="nav">
                    <a href="../index.html" class="nav-link">Home</a>
                    <a href="../blog.html" class="nav-link">Blog</a>
                    <a href="../about.html" class="nav-link">About</a>
                    <a href="../contact.html" class="nav-link">Contact</a>
                </nav>
            </div>
        </div>
    </header>

    <main class="main">
        <article class="blog-post">
            <div class="blog-post-header">
                <h1 class="blog-post-title">%[1]s</h1>
                <div class="blog-post-meta">
                    Published: %[5]s
                </div>
            </div>%[6]s
            <div class="blog-post-content">
                %[7]s
            </div>
        </article>
    </main>

    <footer class="footer">
        <div class="container">
            <p>&copy; 2025 OK-Snap. All rights reserved.</p>
        </div>
    </footer>
</body>
</html>`,
		displayName,
		name,
		html.EscapeString(dish.NameKorean),
		ogImage,
		p.now().Format("January 2, 2006"),
		featuredImage,
		utils.SanitizeHTML(blogHTML),
	)
}
