// Package resolver turns an operator's "--version latest" (or a pinned
// version string) into a concrete plan.TargetArchive by querying a GitHub
// releases page for the target's assets. It runs once, before
// planner.Planner.Build, and never from inside an action: actions only
// ever see a TargetArchive that has already been resolved.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/plan"
)

// Latest is the sentinel version string meaning "resolve whatever the
// repository's newest release is".
const Latest = "latest"

// Resolver resolves a release tag and matching OS/arch asset pair from a
// GitHub repository into a plan.TargetArchive.
type Resolver struct {
	client        *github.Client
	authenticated bool
}

// New returns a Resolver. When token is non-empty, requests are
// authenticated via oauth2, raising GitHub's unauthenticated rate limit.
func New(token string) *Resolver {
	var httpClient *http.Client
	authenticated := false
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		authenticated = true
	}
	return &Resolver{client: github.NewClient(httpClient), authenticated: authenticated}
}

// Authenticated reports whether the resolver is using a GitHub token.
func (r *Resolver) Authenticated() bool { return r.authenticated }

// assetNamer builds the expected archive and digest asset filenames for an
// OS/arch pair, e.g. "nix-2.21.0-x86_64-linux.tar.zst". Release assets that
// don't follow this convention are invisible to Resolve.
func assetNamer(version, osName, arch string) (archiveName, digestName string) {
	goArchToAsset := map[string]string{"amd64": "x86_64", "arm64": "aarch64"}
	assetArch := goArchToAsset[arch]
	if assetArch == "" {
		assetArch = arch
	}
	base := fmt.Sprintf("nix-%s-%s-%s", version, assetArch, osName)
	return base + ".tar.zst", base + ".tar.zst.sha256"
}

// Resolve fetches the named release (or the latest one, when version is
// Latest or empty) from owner/repo, locates its osName/arch archive and
// digest assets, and returns a TargetArchive ready for a Planner.Build
// call. The digest asset's body is expected to be a bare lowercase hex
// digest, optionally followed by "  <filename>" as sha256sum(1) emits.
func (r *Resolver) Resolve(ctx context.Context, repo, version, osName, arch string) (plan.TargetArchive, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return plan.TargetArchive{}, err
	}

	release, err := r.fetchRelease(ctx, owner, name, version)
	if err != nil {
		return plan.TargetArchive{}, err
	}

	tag := release.GetTagName()
	parsedVersion, err := semver.NewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return plan.TargetArchive{}, action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("release tag %q from %s is not a valid version", tag, repo), err)
	}

	archiveName, digestName := assetNamer(parsedVersion.String(), osName, arch)
	archiveAsset := findAsset(release, archiveName)
	if archiveAsset == nil {
		return plan.TargetArchive{}, action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("release %s has no asset named %s", tag, archiveName), nil)
	}

	target := plan.TargetArchive{
		Version: parsedVersion,
		OS:      osName,
		Arch:    arch,
		URL:     archiveAsset.GetBrowserDownloadURL(),
	}

	if digestAsset := findAsset(release, digestName); digestAsset != nil {
		digest, err := r.fetchDigest(ctx, owner, name, digestAsset)
		if err != nil {
			return plan.TargetArchive{}, err
		}
		target.DigestHex = digest
	}

	return target, nil
}

func (r *Resolver) fetchRelease(ctx context.Context, owner, name, version string) (*github.RepositoryRelease, error) {
	if version == "" || version == Latest {
		release, _, err := r.client.Repositories.GetLatestRelease(ctx, owner, name)
		if err != nil {
			return nil, r.wrapAPIError(err, fmt.Sprintf("fetch latest release for %s/%s", owner, name))
		}
		return release, nil
	}

	tag := version
	if !strings.HasPrefix(tag, "v") {
		tag = "v" + tag
	}
	release, resp, err := r.client.Repositories.GetReleaseByTag(ctx, owner, name, tag)
	if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
		// Some repos tag releases without the "v" prefix.
		release, _, err = r.client.Repositories.GetReleaseByTag(ctx, owner, name, version)
	}
	if err != nil {
		return nil, r.wrapAPIError(err, fmt.Sprintf("fetch release %s for %s/%s", version, owner, name))
	}
	return release, nil
}

func (r *Resolver) wrapAPIError(err error, context string) error {
	if rl, ok := err.(*github.RateLimitError); ok {
		return action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("%s: GitHub API rate limit exceeded (resets %s, authenticated=%v)",
				context, rl.Rate.Reset.Time.Format("15:04:05 MST"), r.authenticated), err)
	}
	return action.NewTaggedError(action.TagPlanConflict, context, err)
}

func findAsset(release *github.RepositoryRelease, name string) *github.ReleaseAsset {
	for _, asset := range release.Assets {
		if asset.GetName() == name {
			return asset
		}
	}
	return nil
}

func (r *Resolver) fetchDigest(ctx context.Context, owner, name string, asset *github.ReleaseAsset) (string, error) {
	rc, _, err := r.client.Repositories.DownloadReleaseAsset(ctx, owner, name, asset.GetID(), http.DefaultClient)
	if err != nil {
		return "", action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("download digest asset %s", asset.GetName()), err)
	}
	defer rc.Close()

	buf := make([]byte, 128)
	n, err := rc.Read(buf)
	if err != nil && n == 0 {
		return "", action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("read digest asset %s", asset.GetName()), err)
	}
	fields := strings.Fields(string(buf[:n]))
	if len(fields) == 0 {
		return "", action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("digest asset %s is empty", asset.GetName()), nil)
	}
	return strings.ToLower(fields[0]), nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", action.NewTaggedError(action.TagPlanConflict,
			fmt.Sprintf("invalid repo %q, expected owner/name", repo), nil)
	}
	return parts[0], parts[1], nil
}

// ParseVersionConstraint reports whether version names an exact release
// ("latest" or "" both mean "no constraint, take latest").
func ParseVersionConstraint(version string) (exact string, isLatest bool) {
	v := strings.TrimSpace(version)
	if v == "" || strings.EqualFold(v, Latest) {
		return "", true
	}
	return v, false
}

// FormatRateLimitRemaining renders a rate-limit header value for logging,
// tolerating the header's absence.
func FormatRateLimitRemaining(resp *github.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.Rate.Remaining)
}
