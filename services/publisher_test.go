package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksnap/oksnap/models"
	"github.com/oksnap/oksnap/storage"
)

// fakeContentStore emulates the sha-guarded contents API in memory.
// conflictsLeft injects stale-sha rejections on index writes.
type fakeContentStore struct {
	files         map[string]fakeFile
	rev           int
	conflictsLeft int
	putCalls      int
}

type fakeFile struct {
	data []byte
	sha  string
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{files: map[string]fakeFile{}}
}

func (f *fakeContentStore) GetFile(_ context.Context, path string) ([]byte, string, error) {
	file, ok := f.files[path]
	if !ok {
		return nil, "", storage.ErrNotFound
	}
	return file.data, file.sha, nil
}

func (f *fakeContentStore) PutFile(_ context.Context, path string, data []byte, sha, _ string) error {
	f.putCalls++
	existing, exists := f.files[path]
	if sha == "" && exists {
		return storage.ErrConflict
	}
	if sha != "" && (!exists || existing.sha != sha) {
		return storage.ErrConflict
	}
	if f.conflictsLeft > 0 && strings.HasSuffix(path, "recipes.json") {
		f.conflictsLeft--
		// Simulate a concurrent writer bumping the sha.
		f.rev++
		f.files[path] = fakeFile{data: existing.data, sha: fmt.Sprintf("sha-%d", f.rev)}
		return storage.ErrConflict
	}
	f.rev++
	f.files[path] = fakeFile{data: data, sha: fmt.Sprintf("sha-%d", f.rev)}
	return nil
}

func (f *fakeContentStore) ListDir(_ context.Context, dir string) ([]storage.DirEntry, error) {
	var entries []storage.DirEntry
	for path, file := range f.files {
		if strings.HasPrefix(path, dir+"/") && !strings.Contains(strings.TrimPrefix(path, dir+"/"), "/") {
			entries = append(entries, storage.DirEntry{
				Name: strings.TrimPrefix(path, dir+"/"),
				Path: path,
				SHA:  file.sha,
				Type: "file",
			})
		}
	}
	return entries, nil
}

func (f *fakeContentStore) FileURL(path string) string {
	return "https://ok-snap.com/" + path
}

func testPublisher(content storage.ContentStore) *Publisher {
	return &Publisher{
		content:  content,
		siteURL:  "https://ok-snap.com",
		basePath: "public-site",
		now:      func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) },
	}
}

func kimchiDish() models.DishData {
	return models.DishData{
		Name:       "Kimchi Jjigae",
		NameKorean: "김치찌개",
		IsKorean:   true,
		Cuisine:    "Korean",
		Nutrition:  models.Nutrition{Calories: 250, Protein: 15, Carbs: 30, Fat: 8},
	}
}

func (f *fakeContentStore) index(t *testing.T) []models.RecipeEntry {
	t.Helper()
	data, _, err := f.GetFile(context.Background(), "public-site/recipes.json")
	require.NoError(t, err)
	var recipes []models.RecipeEntry
	require.NoError(t, json.Unmarshal(data, &recipes))
	return recipes
}

func TestPublishCreatesArtifactAndIndex(t *testing.T) {
	content := newFakeContentStore()
	pub := testPublisher(content)

	result, err := pub.Publish(context.Background(), kimchiDish(), "<h1>Kimchi Jjigae</h1>", "https://img.example/kimchi.png")
	require.NoError(t, err)
	assert.Equal(t, models.PublishCreated, result.Status)
	assert.Equal(t, "kimchi-jjigae", result.Slug)
	assert.Equal(t, "https://ok-snap.com/blogs/kimchi-jjigae.html", result.URL)
	assert.False(t, result.IndexStale)

	page, _, err := content.GetFile(context.Background(), "public-site/blogs/kimchi-jjigae.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "Kimchi Jjigae")
	assert.Contains(t, string(page), "김치찌개")

	recipes := content.index(t)
	require.Len(t, recipes, 1)
	assert.Equal(t, "kimchi-jjigae", recipes[0].Slug)
	assert.Equal(t, "Kimchi Jjigae", recipes[0].Title)
	assert.Equal(t, recipes[0].Title, recipes[0].Name)
	assert.Equal(t, "2025-06-15", recipes[0].CreatedAt)
}

func TestPublishIsIdempotentPerSlug(t *testing.T) {
	content := newFakeContentStore()
	pub := testPublisher(content)
	ctx := context.Background()

	first, err := pub.Publish(ctx, kimchiDish(), "<h1>v1</h1>", "")
	require.NoError(t, err)
	require.Equal(t, models.PublishCreated, first.Status)
	writesAfterFirst := content.putCalls

	second, err := pub.Publish(ctx, kimchiDish(), "<h1>v2</h1>", "")
	require.NoError(t, err)
	assert.Equal(t, models.PublishAlreadyExists, second.Status)
	assert.Equal(t, first.URL, second.URL)
	// No writes at all on the repeat: the artifact is never regenerated.
	assert.Equal(t, writesAfterFirst, content.putCalls)

	page, _, err := content.GetFile(ctx, "public-site/blogs/kimchi-jjigae.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "v1")
}

func TestPublishConcurrentCreateMapsToAlreadyExists(t *testing.T) {
	content := newFakeContentStore()
	pub := testPublisher(content)
	ctx := context.Background()

	// The file appears between the existence check and the create.
	pub.content = &raceyStore{fakeContentStore: content}

	result, err := pub.Publish(ctx, kimchiDish(), "<h1>mine</h1>", "")
	require.NoError(t, err)
	assert.Equal(t, models.PublishAlreadyExists, result.Status)
}

// raceyStore publishes the same slug from "elsewhere" on the first miss.
type raceyStore struct {
	*fakeContentStore
	tripped bool
}

func (r *raceyStore) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	data, sha, err := r.fakeContentStore.GetFile(ctx, path)
	if err == storage.ErrNotFound && !r.tripped && strings.HasSuffix(path, ".html") {
		r.tripped = true
		_ = r.fakeContentStore.PutFile(ctx, path, []byte("<h1>theirs</h1>"), "", "concurrent")
	}
	return data, sha, err
}

func TestIndexRetryOnConflict(t *testing.T) {
	content := newFakeContentStore()
	content.conflictsLeft = 2
	pub := testPublisher(content)

	result, err := pub.Publish(context.Background(), kimchiDish(), "<h1>post</h1>", "")
	require.NoError(t, err)
	assert.Equal(t, models.PublishCreated, result.Status)
	// Two conflicts then success on the third attempt.
	assert.False(t, result.IndexStale)
	require.Len(t, content.index(t), 1)
}

func TestIndexExhaustionFailsPublish(t *testing.T) {
	content := newFakeContentStore()
	content.conflictsLeft = 3
	pub := testPublisher(content)

	result, err := pub.Publish(context.Background(), kimchiDish(), "<h1>post</h1>", "")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IndexStale)
	assert.Equal(t, "kimchi-jjigae", result.Slug)

	// The artifact stays published even though the call failed.
	_, _, err = content.GetFile(context.Background(), "public-site/blogs/kimchi-jjigae.html")
	assert.NoError(t, err)
}

// cancelAwareStore fails every call once its context is canceled, the way
// a real HTTP client does.
type cancelAwareStore struct {
	*fakeContentStore
}

func (c *cancelAwareStore) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return c.fakeContentStore.GetFile(ctx, path)
}

func (c *cancelAwareStore) PutFile(ctx context.Context, path string, data []byte, sha, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeContentStore.PutFile(ctx, path, data, sha, msg)
}

func TestPublishSurvivesClientDisconnect(t *testing.T) {
	content := newFakeContentStore()
	pub := testPublisher(&cancelAwareStore{fakeContentStore: content})

	// The request context is already canceled, as after a client disconnect.
	// The store writes must still run so the page and index land together.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := pub.Publish(ctx, kimchiDish(), "<h1>post</h1>", "")
	require.NoError(t, err)
	assert.Equal(t, models.PublishCreated, result.Status)
	assert.False(t, result.IndexStale)

	_, _, err = content.GetFile(context.Background(), "public-site/blogs/kimchi-jjigae.html")
	assert.NoError(t, err)
	require.Len(t, content.index(t), 1)
}

func TestIndexUpsertReplacesBySlug(t *testing.T) {
	content := newFakeContentStore()
	pub := testPublisher(content)
	ctx := context.Background()

	_, err := pub.Publish(ctx, kimchiDish(), "<h1>post</h1>", "")
	require.NoError(t, err)

	bibimbap := kimchiDish()
	bibimbap.Name = "Bibimbap"
	bibimbap.NameKorean = "비빔밥"
	_, err = pub.Publish(ctx, bibimbap, "<h1>post</h1>", "")
	require.NoError(t, err)

	recipes := content.index(t)
	require.Len(t, recipes, 2)
	// Newest entry first.
	assert.Equal(t, "bibimbap", recipes[0].Slug)
	assert.Equal(t, "kimchi-jjigae", recipes[1].Slug)

	// Re-upserting an existing slug replaces in place instead of duplicating.
	entry := models.RecipeEntry{Slug: "bibimbap", Title: "Bibimbap Bowl", Name: "Bibimbap Bowl", URL: pub.BlogURL("bibimbap"), CreatedAt: "2025-06-16"}
	require.NoError(t, pub.upsertIndex(ctx, entry))
	recipes = content.index(t)
	require.Len(t, recipes, 2)
	assert.Equal(t, "Bibimbap Bowl", recipes[0].Title)
}

func TestRebuildIndexFromBlogListing(t *testing.T) {
	content := newFakeContentStore()
	pub := testPublisher(content)
	ctx := context.Background()

	_, err := pub.Publish(ctx, kimchiDish(), "<h1>post</h1>", "")
	require.NoError(t, err)

	// Stale index: wipe it while the blog file remains.
	content.files["public-site/recipes.json"] = fakeFile{data: []byte("[]"), sha: content.files["public-site/recipes.json"].sha}

	count, err := pub.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	recipes := content.index(t)
	require.Len(t, recipes, 1)
	assert.Equal(t, "kimchi-jjigae", recipes[0].Slug)
	assert.Equal(t, "Kimchi Jjigae", recipes[0].Title)
}

func TestPublishRejectsEmptySlug(t *testing.T) {
	pub := testPublisher(newFakeContentStore())
	dish := models.DishData{Name: "!!!"}

	_, err := pub.Publish(context.Background(), dish, "<h1>post</h1>", "")
	assert.Error(t, err)
}
