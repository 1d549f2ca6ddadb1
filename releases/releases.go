// Package releases resolves the latest published client release from the
// release bucket.
package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/decentraland/launcher/errs"
)

// Prefix is the release directory within the bucket.
const Prefix = "@dcl/unity-explorer/releases"

// Release is the minimal metadata needed to download an artifact.
type Release struct {
	Version     string
	DownloadURL string
}

// Client fetches release metadata over plain HTTPS; the bucket exposes a
// public website endpoint, not an object-store API.
type Client struct {
	httpClient *http.Client
	bucketURL  string
	osName     string
	now        func() time.Time
}

func New(bucketURL, osName string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		bucketURL:  bucketURL,
		osName:     osName,
		now:        time.Now,
	}
}

// SetNow overrides the cache-busting timestamp source, for tests.
func (c *Client) SetNow(now func() time.Time) {
	c.now = now
}

type latestRelease struct {
	Version string `json:"version"`
}

// Latest fetches the current release descriptor and synthesizes the per-OS
// artifact URL.
func (c *Client) Latest(ctx context.Context) (Release, error) {
	url := fmt.Sprintf("%s/%s/latest.json?_t=%d", c.bucketURL, Prefix, c.now().UnixMilli())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, errs.Generic(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Release{}, errs.New(errs.CodeDownloadFailed, err, "url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Release{}, errs.New(errs.CodeDownloadHTTPCode, fmt.Errorf("HTTP %d", resp.StatusCode), "url", url, "code", resp.StatusCode)
	}

	var latest latestRelease
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return Release{}, errs.New(errs.CodeDownloadFailed, fmt.Errorf("cannot parse latest release: %w", err), "url", url)
	}

	return Release{
		Version:     latest.Version,
		DownloadURL: fmt.Sprintf("%s/%s/%s/Decentraland_%s.zip", c.bucketURL, Prefix, latest.Version, c.osName),
	}, nil
}

// VersionFromURL extracts the version component of an artifact URL rooted
// at bucketURL. The empty string means the URL does not match the canonical
// release layout.
func VersionFromURL(bucketURL, url string) string {
	pattern := fmt.Sprintf(`^%s/%s/(v?\d+\.\d+\.\d+-?\w*)/(\w+.zip)`, regexp.QuoteMeta(bucketURL), regexp.QuoteMeta(Prefix))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	matches := re.FindStringSubmatch(url)
	if matches == nil {
		return ""
	}
	return matches[1]
}
