package controllers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/storage"
)

// stubContentStore serves a fixed set of published files.
type stubContentStore struct {
	files map[string][]byte
}

func (s *stubContentStore) GetFile(_ context.Context, path string) ([]byte, string, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, "", storage.ErrNotFound
	}
	return data, "sha-1", nil
}

func (s *stubContentStore) PutFile(_ context.Context, path string, data []byte, sha, _ string) error {
	if _, exists := s.files[path]; exists && sha == "" {
		return storage.ErrConflict
	}
	s.files[path] = data
	return nil
}

func (s *stubContentStore) ListDir(_ context.Context, dir string) ([]storage.DirEntry, error) {
	var entries []storage.DirEntry
	for path := range s.files {
		if strings.HasPrefix(path, dir+"/") {
			entries = append(entries, storage.DirEntry{
				Name: strings.TrimPrefix(path, dir+"/"),
				Path: path,
				Type: "file",
			})
		}
	}
	return entries, nil
}

func (s *stubContentStore) FileURL(path string) string { return "https://ok-snap.com/" + path }

func blogRouter(t *testing.T, content storage.ContentStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Reset()
	cfg := config.Get()

	var publisher *services.Publisher
	if content != nil {
		publisher = services.NewPublisher(content, &cfg)
	}
	bc := NewBlogController(services.NewVision(&cfg), publisher)

	r := gin.New()
	r.POST("/api/generate-blog", bc.GenerateBlog)
	r.GET("/api/blogs/:slug", bc.GetBlog)
	r.GET("/api/blog-exists/:slug", bc.BlogExists)
	return r
}

func TestBlogExists(t *testing.T) {
	content := &stubContentStore{files: map[string][]byte{
		"public-site/blogs/kimchi-jjigae.html": []byte("<html>kimchi</html>"),
	}}
	r := blogRouter(t, content)

	w, body := doJSON(t, r, http.MethodGet, "/api/blog-exists/kimchi-jjigae", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, "kimchi-jjigae", body["slug"])
	assert.Equal(t, "https://ok-snap.com/blogs/kimchi-jjigae.html", body["url"])

	w, body = doJSON(t, r, http.MethodGet, "/api/blog-exists/bulgogi", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["exists"])
	assert.NotContains(t, body, "url")
}

func TestBlogExistsRejectsBadSlug(t *testing.T) {
	r := blogRouter(t, &stubContentStore{files: map[string][]byte{}})

	w, body := doJSON(t, r, http.MethodGet, "/api/blog-exists/Kimchi%20Jjigae", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", body["error"])
}

func TestGetBlogServesHTML(t *testing.T) {
	content := &stubContentStore{files: map[string][]byte{
		"public-site/blogs/kimchi-jjigae.html": []byte("<html>kimchi</html>"),
	}}
	r := blogRouter(t, content)

	req, w := newRequest(http.MethodGet, "/api/blogs/kimchi-jjigae")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "<html>kimchi</html>", w.Body.String())
}

func TestGetBlogNotFound(t *testing.T) {
	r := blogRouter(t, &stubContentStore{files: map[string][]byte{}})

	w, body := doJSON(t, r, http.MethodGet, "/api/blogs/bulgogi", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestGenerateBlogSkipsExisting(t *testing.T) {
	content := &stubContentStore{files: map[string][]byte{
		"public-site/blogs/kimchi-jjigae.html": []byte("<html>kimchi</html>"),
	}}
	r := blogRouter(t, content)

	// No model calls happen for an existing slug, so the unset API key
	// never comes into play.
	w, body := doJSON(t, r, http.MethodPost, "/api/generate-blog", `{"dishData":{"name":"Kimchi Jjigae"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["skipped"])
	assert.Equal(t, "kimchi-jjigae", body["slug"])
	assert.Equal(t, "https://ok-snap.com/blogs/kimchi-jjigae.html", body["blogUrl"])
}

func TestGenerateBlogRequiresDishName(t *testing.T) {
	r := blogRouter(t, &stubContentStore{files: map[string][]byte{}})

	w, body := doJSON(t, r, http.MethodPost, "/api/generate-blog", `{"dishData":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "dishData with name is required", body["message"])
}

func TestGenerateBlogWithoutPublisherIsConfigError(t *testing.T) {
	r := blogRouter(t, nil)

	w, body := doJSON(t, r, http.MethodPost, "/api/generate-blog", `{"dishData":{"name":"Kimchi Jjigae"}}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "CONFIGURATION_ERROR", body["error"])
}
