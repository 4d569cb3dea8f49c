package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nix-installer/nix-installer/internal/action"
)

func mockGitHubServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func newTestResolver(t *testing.T, server *httptest.Server) *Resolver {
	t.Helper()
	client, err := github.NewClient(nil).WithEnterpriseURLs(server.URL, server.URL)
	require.NoError(t, err)
	return &Resolver{client: client}
}

func TestResolve_LatestRelease(t *testing.T) {
	server := mockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/releases/latest"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"tag_name": "v2.21.0",
				"assets": [
					{"id": 1, "name": "nix-2.21.0-x86_64-linux.tar.zst", "browser_download_url": "https://example.com/nix.tar.zst"},
					{"id": 2, "name": "nix-2.21.0-x86_64-linux.tar.zst.sha256", "browser_download_url": "https://example.com/nix.sha256"}
				]
			}`)
		case strings.Contains(r.URL.Path, "/releases/assets/2"):
			fmt.Fprint(w, "deadbeefcafe  nix-2.21.0-x86_64-linux.tar.zst\n")
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	})
	defer server.Close()

	r := newTestResolver(t, server)
	target, err := r.Resolve(context.Background(), "nixos/nix", Latest, "linux", "amd64")
	require.NoError(t, err)
	assert.Equal(t, "2.21.0", target.Version.String())
	assert.Equal(t, "https://example.com/nix.tar.zst", target.URL)
	assert.Equal(t, "deadbeefcafe", target.DigestHex)
	assert.Equal(t, "linux", target.OS)
	assert.Equal(t, "amd64", target.Arch)
}

func TestResolve_PinnedVersion(t *testing.T) {
	server := mockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/releases/tags/v2.18.1") {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"tag_name": "v2.18.1",
				"assets": [
					{"id": 3, "name": "nix-2.18.1-aarch64-darwin.tar.zst", "browser_download_url": "https://example.com/nix-darwin.tar.zst"}
				]
			}`)
			return
		}
		t.Fatalf("unexpected request: %s", r.URL.Path)
	})
	defer server.Close()

	r := newTestResolver(t, server)
	target, err := r.Resolve(context.Background(), "nixos/nix", "2.18.1", "darwin", "arm64")
	require.NoError(t, err)
	assert.Equal(t, "2.18.1", target.Version.String())
	assert.Equal(t, "https://example.com/nix-darwin.tar.zst", target.URL)
	assert.Empty(t, target.DigestHex)
}

func TestResolve_MissingAssetIsPlanConflict(t *testing.T) {
	server := mockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tag_name": "v2.21.0", "assets": []}`)
	})
	defer server.Close()

	r := newTestResolver(t, server)
	_, err := r.Resolve(context.Background(), "nixos/nix", Latest, "linux", "amd64")
	require.Error(t, err)
	var tagged *action.TaggedError
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, action.TagPlanConflict, tagged.Tag)
}

func TestResolve_InvalidRepoFormat(t *testing.T) {
	r := &Resolver{client: github.NewClient(nil)}
	_, err := r.Resolve(context.Background(), "not-a-repo", Latest, "linux", "amd64")
	require.Error(t, err)
	var tagged *action.TaggedError
	require.ErrorAs(t, err, &tagged)
}

func TestAssetNamer(t *testing.T) {
	archiveName, digestName := assetNamer("2.21.0", "linux", "amd64")
	assert.Equal(t, "nix-2.21.0-x86_64-linux.tar.zst", archiveName)
	assert.Equal(t, "nix-2.21.0-x86_64-linux.tar.zst.sha256", digestName)

	archiveName, _ = assetNamer("2.21.0", "darwin", "arm64")
	assert.Equal(t, "nix-2.21.0-aarch64-darwin.tar.zst", archiveName)
}

func TestParseVersionConstraint(t *testing.T) {
	exact, isLatest := ParseVersionConstraint("")
	assert.True(t, isLatest)
	assert.Empty(t, exact)

	exact, isLatest = ParseVersionConstraint("latest")
	assert.True(t, isLatest)
	assert.Empty(t, exact)

	exact, isLatest = ParseVersionConstraint("2.18.1")
	assert.False(t, isLatest)
	assert.Equal(t, "2.18.1", exact)
}
