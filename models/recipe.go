package models

// RecipeEntry is the denormalized listing entry kept in the recipes index.
// Name mirrors Title for backward compatibility with older site builds.
type RecipeEntry struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
}

// PublishResult is the outcome of publishing a blog artifact.
type PublishResult struct {
	Status   string // "created" or "alreadyExists"
	URL      string
	Slug     string
	ImageURL string
	// IndexStale is set when the artifact was written but the index update
	// failed after all retries; the blog exists but is undiscoverable.
	IndexStale bool
}

const (
	PublishCreated       = "created"
	PublishAlreadyExists = "alreadyExists"
)
