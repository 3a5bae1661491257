// Package github is a minimal GitHub REST client covering the repository and
// contents endpoints the commit engine needs, plus the OAuth flows used to
// obtain a token.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
)

// DefaultAPIBase is the public GitHub REST endpoint.
const DefaultAPIBase = "https://api.github.com"

const defaultTimeout = 30 * time.Second

// RepoConfig identifies the destination repository. Immutable once saved
// except via explicit user action.
type RepoConfig struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// ContentFile is the remote state of one repository path: the revision token
// (sha) required to overwrite it, and the decoded content.
type ContentFile struct {
	Path    string
	SHA     string
	Content []byte
}

// Client talks to the GitHub REST API. It holds no credentials; every call
// takes the token so the background owner of auth state stays the single
// source of truth.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a client against apiBase ("" means DefaultAPIBase).
func NewClient(apiBase string, httpClient *http.Client) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiBase: apiBase, httpClient: httpClient}
}

// do issues an authenticated request and decodes the JSON response into out
// (when non-nil). Non-2xx statuses become REMOTE_API errors with the status
// embedded.
func (c *Client) do(ctx context.Context, token, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "encoding request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return 0, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "building request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, gerrors.Wrap(err, gerrors.ErrCodeRemoteAPI, fmt.Sprintf("%s %s", method, path)).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, gerrors.New(gerrors.ErrCodeRemoteAPI,
			fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode)).
			WithContext("status", resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, gerrors.Wrap(err, gerrors.ErrCodeRemoteAPI,
				fmt.Sprintf("decoding %s %s response", method, path))
		}
	}
	return resp.StatusCode, nil
}

// RepoExists checks the destination repository. Returns (false, nil) on a
// clean 404; any other failure is an error.
func (c *Client) RepoExists(ctx context.Context, token string, repo RepoConfig) (bool, error) {
	status, err := c.do(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name), nil, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateRepo creates a private repository with the given name under the
// authenticated account.
func (c *Client) CreateRepo(ctx context.Context, token, name string) error {
	payload := map[string]any{
		"name":        name,
		"private":     true,
		"description": "Accepted coding-practice solutions, pushed by gitgrind",
	}
	_, err := c.do(ctx, token, http.MethodPost, "/user/repos", payload, nil)
	return err
}

// GetContents reads the current remote revision of path. Returns (nil, nil)
// when the file does not exist yet.
func (c *Client) GetContents(ctx context.Context, token string, repo RepoConfig, path string) (*ContentFile, error) {
	var body struct {
		SHA     string `json:"sha"`
		Content string `json:"content"`
	}
	status, err := c.do(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, path), nil, &body)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	decoded, decodeErr := base64.StdEncoding.DecodeString(stripNewlines(body.Content))
	if decodeErr != nil {
		decoded = nil
	}
	return &ContentFile{Path: path, SHA: body.SHA, Content: decoded}, nil
}

// PutContents writes content to path. A non-empty sha performs an atomic
// replace of that revision; without one the write creates the file.
func (c *Client) PutContents(ctx context.Context, token string, repo RepoConfig, path, message string, content []byte, sha string) error {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if sha != "" {
		payload["sha"] = sha
	}
	if repo.DefaultBranch != "" {
		payload["branch"] = repo.DefaultBranch
	}
	_, err := c.do(ctx, token, http.MethodPut,
		fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, path), payload, nil)
	return err
}

// GetUsername resolves the login of the token's owner.
func (c *Client) GetUsername(ctx context.Context, token string) (string, error) {
	var body struct {
		Login string `json:"login"`
	}
	if _, err := c.do(ctx, token, http.MethodGet, "/user", nil, &body); err != nil {
		return "", err
	}
	return body.Login, nil
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
