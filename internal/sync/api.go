package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inkstone/inkstone/internal/schema"
)

// Sentinel errors surfaced by the remote API client.
var (
	// ErrConflict maps HTTP 409 on upload: the remote rejected the
	// snapshot because its copy changed. Not retried automatically.
	ErrConflict = errors.New("remote conflict")
	// ErrUnauthorized covers a missing, invalid or expired access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotApproved means the account failed the server-side approval
	// check that gates every sync run.
	ErrNotApproved = errors.New("account not approved for sync")
)

// DefaultRequestTimeout bounds each remote call. The protocol itself has no
// retry layer, so a hung request would otherwise hang the whole run.
const DefaultRequestTimeout = 30 * time.Second

// ProjectMeta is the lightweight per-project entry of the remote's project
// list: enough to reconcile without fetching full payloads.
type ProjectMeta struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Version        int64  `json:"version"`
	LastModifiedAt string `json:"lastModifiedAt"`
	Checksum       string `json:"checksum"`
	FileSize       int64  `json:"fileSize,omitempty"`
}

// UploadItem is one project snapshot as sent to the remote. Data is the
// serialized aggregate exactly as checksummed; the server stores it opaquely.
type UploadItem struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Data           string `json:"data"`
	LastModifiedAt string `json:"lastModifiedAt"`
	Checksum       string `json:"checksum"`
}

// BatchResult reports the outcome of a batch upload.
type BatchResult struct {
	Uploaded int `json:"uploaded"`
	Errors   []struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	} `json:"errors"`
}

// DownloadedProject is the full remote snapshot of one project.
type DownloadedProject struct {
	Title          string            `json:"title"`
	LastModifiedAt string            `json:"lastModifiedAt"`
	Data           *schema.Aggregate `json:"data"`
}

// envelope is the common response wrapper of the sync API.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client talks to the remote sync API. All requests carry the bearer token;
// the HTTP transport is injected so tests can point it at a fake server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a sync API client. If httpClient is nil a default client
// with DefaultRequestTimeout is used.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

// HasToken reports whether the client was configured with an access token.
func (c *Client) HasToken() bool {
	return c.token != ""
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return &env, resp.StatusCode, nil
}

func (c *Client) checkStatus(status int, env *envelope) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 300:
		if env != nil && env.Error != "" {
			return fmt.Errorf("server error (HTTP %d): %s", status, env.Error)
		}
		return fmt.Errorf("server error (HTTP %d)", status)
	case env != nil && !env.Success:
		if env.Error != "" {
			return fmt.Errorf("server rejected request: %s", env.Error)
		}
		return fmt.Errorf("server rejected request")
	}
	return nil
}

// AccountStatus performs the fresh server-side approval check that gates
// every sync run. Returns whether the account is approved.
func (c *Client) AccountStatus(ctx context.Context) (bool, error) {
	env, status, err := c.do(ctx, http.MethodGet, "/api/sync/status", nil)
	if err != nil {
		return false, err
	}
	if err := c.checkStatus(status, env); err != nil {
		return false, err
	}
	var data struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return false, fmt.Errorf("failed to decode status response: %w", err)
	}
	return data.Approved, nil
}

// ListProjects retrieves the remote's lightweight project metadata list.
func (c *Client) ListProjects(ctx context.Context) ([]ProjectMeta, error) {
	env, status, err := c.do(ctx, http.MethodGet, "/api/sync/projects", nil)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(status, env); err != nil {
		return nil, err
	}
	var data struct {
		Projects []ProjectMeta `json:"projects"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode project list: %w", err)
	}
	return data.Projects, nil
}

// Upload sends one full project snapshot. HTTP 409 surfaces as ErrConflict.
func (c *Client) Upload(ctx context.Context, item UploadItem) error {
	env, status, err := c.do(ctx, http.MethodPost, "/api/sync/upload", item)
	if err != nil {
		return err
	}
	return c.checkStatus(status, env)
}

// BatchUpload sends several snapshots in one request and returns the
// per-item outcome.
func (c *Client) BatchUpload(ctx context.Context, items []UploadItem) (*BatchResult, error) {
	body := struct {
		Projects []UploadItem `json:"projects"`
	}{Projects: items}

	env, status, err := c.do(ctx, http.MethodPost, "/api/sync/batch-upload", body)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(status, env); err != nil {
		return nil, err
	}
	var result BatchResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}
	return &result, nil
}

// Download fetches the full snapshot of one remote project.
func (c *Client) Download(ctx context.Context, projectID string) (*DownloadedProject, error) {
	env, status, err := c.do(ctx, http.MethodGet, "/api/sync/download/"+projectID, nil)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(status, env); err != nil {
		return nil, err
	}
	var data struct {
		Project *DownloadedProject `json:"project"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode download: %w", err)
	}
	if data.Project == nil || data.Project.Data == nil {
		return nil, fmt.Errorf("download response missing project payload")
	}
	return data.Project, nil
}

// DeleteProject removes a project on the remote. HTTP 404 is success: the
// remote already lacks it.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	env, status, err := c.do(ctx, http.MethodDelete, "/api/sync/project/"+projectID, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	return c.checkStatus(status, env)
}
