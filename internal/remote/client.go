// Package remote talks to the cloud file store that mirrors the board
// document: one JSON file, located by name, replaced wholesale on upload.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
)

// Defaults for the remote client.
const (
	DefaultFileName   = "TaboardSync.json"
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// emptyDocument is the body of a freshly created remote file.
const emptyDocument = `{"version":1,"spaces":[],"preferences":{}}`

// Endpoints are the base URLs of the remote APIs.
type Endpoints struct {
	API      string `yaml:"api"`
	Upload   string `yaml:"upload"`
	UserInfo string `yaml:"user_info"`
	Revoke   string `yaml:"revoke"`
}

// DefaultEndpoints point at Google Drive v3 and Google OAuth2.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		API:      "https://www.googleapis.com/drive/v3",
		Upload:   "https://www.googleapis.com/upload/drive/v3",
		UserInfo: "https://www.googleapis.com/oauth2/v2/userinfo",
		Revoke:   "https://oauth2.googleapis.com/revoke",
	}
}

// Client is a RemoteSyncClient. It is safe for concurrent use.
type Client struct {
	http       *http.Client
	endpoints  Endpoints
	fileName   string
	retryDelay time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	fileID string // cached result of EnsureFile
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEndpoints overrides the API base URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithFileName sets the name of the remote document.
func WithFileName(name string) Option {
	return func(c *Client) { c.fileName = name }
}

// WithRetryDelay sets the back-off before the single retry of a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: DefaultTimeout},
		endpoints:  DefaultEndpoints(),
		fileName:   DefaultFileName,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFileID seeds the cached file id, typically from persisted metadata.
func (c *Client) SetFileID(id string) {
	c.mu.Lock()
	c.fileID = id
	c.mu.Unlock()
}

// ResetFile forgets the cached file id.
func (c *Client) ResetFile() {
	c.SetFileID("")
}

// EnsureFile returns the id of the remote document, creating it with an
// empty document when no file of that name exists. created reports whether
// this call created it.
func (c *Client) EnsureFile(ctx context.Context, token string) (fileID string, created bool, err error) {
	c.mu.Lock()
	cached := c.fileID
	c.mu.Unlock()
	if cached != "" {
		return cached, false, nil
	}

	fileID, err = c.findFile(ctx, token)
	if err != nil {
		return "", false, err
	}
	if fileID == "" {
		fileID, err = c.createFile(ctx, token)
		if err != nil {
			return "", false, err
		}
		created = true
		c.logger.Info("remote: created sync file", slog.String("file_id", fileID))
	}

	c.SetFileID(fileID)
	return fileID, created, nil
}

func (c *Client) findFile(ctx context.Context, token string) (string, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("name='%s' and trashed=false", escapeQuery(c.fileName)))
	q.Set("spaces", "drive")
	q.Set("fields", "files(id,name)")
	endpoint := c.endpoints.API + "/files?" + q.Encode()

	body, err := c.do(ctx, "remote: list files", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, endpoint, token, nil, "")
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("remote: list files: decode: %w", err)
	}
	if len(out.Files) == 0 {
		return "", nil
	}
	return out.Files[0].ID, nil
}

func (c *Client) createFile(ctx context.Context, token string) (string, error) {
	metadata, err := json.Marshal(map[string]string{
		"name":     c.fileName,
		"mimeType": "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("remote: create file: %w", err)
	}
	endpoint := c.endpoints.Upload + "/files?uploadType=multipart&fields=id"

	body, err := c.do(ctx, "remote: create file", func() (*http.Request, error) {
		payload, contentType, err := multipartRelated(metadata, []byte(emptyDocument))
		if err != nil {
			return nil, err
		}
		return c.newRequest(ctx, http.MethodPost, endpoint, token, payload, contentType)
	})
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("remote: create file: decode: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("remote: create file: response without id")
	}
	return out.ID, nil
}

// multipartRelated builds a multipart/related body with a JSON metadata
// part followed by the media part.
func multipartRelated(metadata, media []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, part := range []struct {
		contentType string
		data        []byte
	}{
		{"application/json; charset=UTF-8", metadata},
		{"application/json", media},
	} {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Type", part.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(part.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "multipart/related; boundary=" + w.Boundary(), nil
}

// Upload replaces the content of fileID with s. Favicons are stripped.
func (c *Client) Upload(ctx context.Context, token, fileID string, s *models.AppState) error {
	data, err := json.Marshal(Prune(s))
	if err != nil {
		return fmt.Errorf("remote: upload: encode: %w", err)
	}
	endpoint := c.endpoints.Upload + "/files/" + url.PathEscape(fileID) + "?uploadType=media"

	_, err = c.do(ctx, "remote: upload", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPatch, endpoint, token, bytes.NewReader(data), "application/json")
	})
	if errors.Is(err, apperr.ErrRemoteMissing) {
		c.ResetFile()
	}
	return err
}

// Download fetches and decodes the content of fileID. The document is
// returned as stored; callers normalize it on adoption.
func (c *Client) Download(ctx context.Context, token, fileID string) (*models.AppState, error) {
	endpoint := c.endpoints.API + "/files/" + url.PathEscape(fileID) + "?alt=media"

	body, err := c.do(ctx, "remote: download", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, endpoint, token, nil, "")
	})
	if err != nil {
		if errors.Is(err, apperr.ErrRemoteMissing) {
			c.ResetFile()
		}
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return state.EmptyDocument(), nil
	}
	s, err := state.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("remote: download: %w", err)
	}
	if s == nil {
		return state.EmptyDocument(), nil
	}
	return s, nil
}

// FetchProfile returns the account behind token. A missing display name
// falls back to the local part of the email address.
func (c *Client) FetchProfile(ctx context.Context, token string) (*models.Account, error) {
	endpoint := c.endpoints.UserInfo + "?alt=json"

	body, err := c.do(ctx, "remote: fetch profile", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, endpoint, token, nil, "")
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("remote: fetch profile: decode: %w", err)
	}
	acct := &models.Account{Name: out.Name, Email: out.Email, Picture: out.Picture}
	if acct.Name == "" {
		acct.Name, _, _ = strings.Cut(out.Email, "@")
	}
	return acct, nil
}

// Revoke invalidates token at the identity provider.
func (c *Client) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}.Encode()
	_, err := c.do(ctx, "remote: revoke", func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, c.endpoints.Revoke, "", strings.NewReader(form),
			"application/x-www-form-urlencoded")
	})
	return err
}

func (c *Client) newRequest(ctx context.Context, method, endpoint, token string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do performs the request built by build, retrying once after retryDelay
// when the first attempt fails transiently.
func (c *Client) do(ctx context.Context, op string, build func() (*http.Request, error)) ([]byte, error) {
	body, err := c.attempt(op, build)
	if err == nil || !apperr.IsTransient(err) {
		return body, err
	}

	c.logger.Warn("remote: transient failure, retrying",
		slog.String("op", op),
		slog.Duration("delay", c.retryDelay),
		slog.String("error", err.Error()))

	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case <-t.C:
	}
	return c.attempt(op, build)
}

func (c *Client) attempt(op string, build func() (*http.Request, error)) ([]byte, error) {
	req, err := build()
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %w", op, apperr.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperr.APIError{Op: op, Status: resp.StatusCode}
	}
	return body, nil
}

// Prune returns a copy of s without locally derived data.
func Prune(s *models.AppState) *models.AppState {
	out := s.Clone()
	if out == nil {
		return nil
	}
	for _, sp := range out.Spaces {
		for _, b := range sp.Boards {
			for _, card := range b.Cards {
				card.Favicon = ""
			}
		}
	}
	return out
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
