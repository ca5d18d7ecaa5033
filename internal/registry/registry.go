// Package registry is a REST client for an MLflow-compatible model
// registry. It observes versions and requests stage transitions; it never
// fabricates versions or retries on its own. Retry and degradation policy
// belong to callers: the promotion gate downgrades registry failures to a
// warning, the serving loader falls back to the local artifact.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Stage is a model version lifecycle stage as the registry defines it.
type Stage string

const (
	StageNone       Stage = "None"
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

// ErrUnavailable marks any connectivity, timeout, or server-side failure.
// Callers check it with errors.Is and apply their own fallback policy.
var ErrUnavailable = errors.New("registry: unavailable")

// ErrNotFound indicates the registry answered but has no matching entry.
var ErrNotFound = errors.New("registry: not found")

// Error wraps a failed registry call with the operation that failed.
type Error struct {
	Op     string
	Status int // HTTP status, 0 when the call never completed
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("registry: %s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("registry: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ModelVersion is one version of a registered model as reported by the
// registry. The registry owns these records; this client only reads them.
type ModelVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Stage   Stage  `json:"current_stage"`
	RunID   string `json:"run_id,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Client talks to one registry instance. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every registry call. Startup and promotion must not
// hang on an unreachable registry; a timeout is treated like any other
// availability failure.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a registry client for the given tracking URI.
func New(trackingURI string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(trackingURI, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListVersions returns every version of the named model. The order is
// whatever the registry returned — it carries no "latest first" guarantee;
// use LatestVersion for deterministic selection.
func (c *Client) ListVersions(ctx context.Context, name string) ([]ModelVersion, error) {
	q := url.Values{"filter": {fmt.Sprintf("name='%s'", name)}}
	var out struct {
		ModelVersions []ModelVersion `json:"model_versions"`
	}
	if err := c.get(ctx, "/api/2.0/mlflow/model-versions/search", q, &out); err != nil {
		return nil, err
	}
	return out.ModelVersions, nil
}

// LatestVersion selects the numerically greatest version of the named
// model. Selection is explicit on purpose: registry list order is
// unspecified and must never stand in for "latest".
func (c *Client) LatestVersion(ctx context.Context, name string) (*ModelVersion, error) {
	versions, err := c.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	var latest *ModelVersion
	var latestNum int64 = -1
	for i := range versions {
		n, err := strconv.ParseInt(versions[i].Version, 10, 64)
		if err != nil {
			continue
		}
		if n > latestNum {
			latestNum = n
			latest = &versions[i]
		}
	}
	if latest == nil {
		return nil, &Error{Op: "latest version", Err: fmt.Errorf("%w: model %q has no versions", ErrNotFound, name)}
	}
	return latest, nil
}

// ProductionVersion returns the version currently holding the Production
// stage, or ErrNotFound when no version does.
func (c *Client) ProductionVersion(ctx context.Context, name string) (*ModelVersion, error) {
	versions, err := c.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].Stage == StageProduction {
			return &versions[i], nil
		}
	}
	return nil, &Error{Op: "production version", Err: fmt.Errorf("%w: model %q has no production version", ErrNotFound, name)}
}

// TransitionStage moves a version to target. With archiveExisting the
// registry atomically archives every previous holder of target, so at most
// one version holds it afterwards. The archive ordering is the registry's
// business, not ours.
func (c *Client) TransitionStage(ctx context.Context, name, version string, target Stage, archiveExisting bool) (*ModelVersion, error) {
	body := map[string]any{
		"name":                      name,
		"version":                   version,
		"stage":                     string(target),
		"archive_existing_versions": archiveExisting,
	}
	var out struct {
		ModelVersion ModelVersion `json:"model_version"`
	}
	if err := c.post(ctx, "/api/2.0/mlflow/model-versions/transition-stage", body, &out); err != nil {
		return nil, err
	}
	return &out.ModelVersion, nil
}

// DownloadArtifact fetches the artifact bytes for a model version and
// writes them to dst atomically (temp file + rename), so a concurrent
// reader of dst never sees a partial download.
func (c *Client) DownloadArtifact(ctx context.Context, name, version, dst string) error {
	q := url.Values{"name": {name}, "version": {version}}
	var uriResp struct {
		ArtifactURI string `json:"artifact_uri"`
	}
	if err := c.get(ctx, "/api/2.0/mlflow/model-versions/get-download-uri", q, &uriResp); err != nil {
		return err
	}

	fetchURL := uriResp.ArtifactURI
	if strings.HasPrefix(fetchURL, "/") {
		fetchURL = c.baseURL + fetchURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return &Error{Op: "download artifact", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "download artifact", Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &Error{Op: "download artifact", Status: resp.StatusCode, Err: ErrUnavailable}
	}

	return writeAtomic(dst, resp.Body)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	op := "GET " + path
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	return c.do(req, op, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	op := "POST " + path
	raw, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &Error{Op: op, Status: resp.StatusCode, Err: ErrNotFound}
	}
	if resp.StatusCode >= 300 {
		return &Error{Op: op, Status: resp.StatusCode, Err: ErrUnavailable}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func writeAtomic(dst string, r io.Reader) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("registry: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("registry: rename artifact: %w", err)
	}
	return nil
}
