package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const githubAPIBase = "https://api.github.com"

// GitHubStore implements ContentStore on the GitHub Contents API. The blob
// sha returned on reads is the optimistic concurrency token: updates with a
// stale sha come back as 409/422 and are surfaced as ErrConflict.
type GitHubStore struct {
	owner   string
	repo    string
	branch  string
	siteURL string
	client  *http.Client
}

type githubFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type githubPutBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// NewGitHubStore creates a content store for owner/repo on the given branch.
// siteURL is the public origin the stored files are served from.
func NewGitHubStore(token, repoSpec, branch, siteURL string, timeout time.Duration) (*GitHubStore, error) {
	if token == "" || repoSpec == "" {
		return nil, fmt.Errorf("github token and repo are required")
	}
	owner, repo, ok := strings.Cut(repoSpec, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid github repo %q, expected owner/repo", repoSpec)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = timeout

	return &GitHubStore{
		owner:   owner,
		repo:    repo,
		branch:  branch,
		siteURL: strings.TrimSuffix(siteURL, "/"),
		client:  client,
	}, nil
}

func (g *GitHubStore) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", githubAPIBase, g.owner, g.repo, path)
}

func (g *GitHubStore) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "ok-snap-blog-generator")
	return g.client.Do(req)
}

func (g *GitHubStore) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(path)+"?ref="+g.branch, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := g.do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("github get %s: %d", path, resp.StatusCode)
	}

	var file githubFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, "", err
	}

	// API base64 bodies are newline wrapped
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("github decode %s: %w", path, err)
	}
	return raw, file.SHA, nil
}

func (g *GitHubStore) PutFile(ctx context.Context, path string, data []byte, sha, message string) error {
	body := githubPutBody{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  g.branch,
		SHA:     sha,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrConflict
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github put %s: %d - %s", path, resp.StatusCode, string(detail))
	}
}

func (g *GitHubStore) ListDir(ctx context.Context, path string) ([]DirEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(path)+"?ref="+g.branch, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github list %s: %d", path, resp.StatusCode)
	}

	var files []githubFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, DirEntry{Name: f.Name, Path: f.Path, SHA: f.SHA, Type: f.Type})
	}
	return entries, nil
}

func (g *GitHubStore) FileURL(path string) string {
	// strip the repo-internal base directory; the site serves from its root
	trimmed := path
	if i := strings.Index(trimmed, "blogs/"); i >= 0 {
		trimmed = trimmed[i:]
	} else if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return g.siteURL + "/" + trimmed
}
