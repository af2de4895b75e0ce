package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGitHubBasePathDefaultsWithoutConfigFile(t *testing.T) {
	// t.Setenv registers the restore; the test itself needs the variable absent.
	t.Setenv("GITHUB_BASE_PATH", "placeholder")
	os.Unsetenv("GITHUB_BASE_PATH")

	Reset()
	t.Cleanup(Reset)

	c := Get()
	assert.Equal(t, "public-site", c.GitHubBasePath)
}

func TestGitHubBasePathExplicitEmptyEnvMeansRepoRoot(t *testing.T) {
	t.Setenv("GITHUB_BASE_PATH", "")

	Reset()
	t.Cleanup(Reset)

	c := Get()
	assert.Equal(t, "", c.GitHubBasePath)
}

func TestGitHubBasePathEnvOverride(t *testing.T) {
	t.Setenv("GITHUB_BASE_PATH", "site-content")

	Reset()
	t.Cleanup(Reset)

	c := Get()
	assert.Equal(t, "site-content", c.GitHubBasePath)
}
