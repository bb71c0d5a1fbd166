package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"socialsync/remote"
)

// DefaultBaseURL is the public Firestore REST endpoint.
const DefaultBaseURL = "https://firestore.googleapis.com/v1"

// Client talks to one database of the document store. Every call takes the
// caller's bearer token; the client holds no identity of its own.
type Client struct {
	baseURL    string
	project    string
	database   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a client for projects/{project}/databases/{database}.
func NewClient(baseURL, project, database string, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if database == "" {
		database = "(default)"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		database:   database,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Root is the resource name under which all documents live.
func (c *Client) Root() string {
	return fmt.Sprintf("projects/%s/databases/%s/documents", c.project, c.database)
}

// DocumentName is the full resource name of collection/id.
func (c *Client) DocumentName(collection, id string) string {
	return c.Root() + "/" + collection + "/" + id
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("docstore: encode %s body: %w", method, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docstore: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("docstore request",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remote.FromResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("docstore: decode %s response: %w", method, err)
	}
	return nil
}

// Get fetches collection/id.
func (c *Client) Get(ctx context.Context, token, collection, id string) (*Document, error) {
	var doc Document
	if err := c.do(ctx, token, http.MethodGet, c.url(c.DocumentName(collection, id), nil), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SkippedDocument is a list entry that could not be decoded.
type SkippedDocument struct {
	Name string
	Err  error
}

// ListResult is every document of a collection, minus those that failed to decode.
type ListResult struct {
	Documents []*Document
	Skipped   []SkippedDocument
}

type listPage struct {
	Documents     []json.RawMessage `json:"documents"`
	NextPageToken string            `json:"nextPageToken"`
}

// List fetches every document of collection, following page tokens. Each
// document is decoded on its own so one malformed entry does not fail the batch.
func (c *Client) List(ctx context.Context, token, collection string, pageSize int) (*ListResult, error) {
	result := &ListResult{}
	pageToken := ""
	for {
		query := url.Values{}
		if pageSize > 0 {
			query.Set("pageSize", strconv.Itoa(pageSize))
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page listPage
		if err := c.do(ctx, token, http.MethodGet, c.url(c.Root()+"/"+collection, query), nil, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Documents {
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				result.Skipped = append(result.Skipped, SkippedDocument{Name: peekName(raw), Err: err})
				continue
			}
			result.Documents = append(result.Documents, &doc)
		}

		if page.NextPageToken == "" {
			return result, nil
		}
		pageToken = page.NextPageToken
	}
}

func peekName(raw json.RawMessage) string {
	var named struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(raw, &named)
	return named.Name
}

// Create adds a document to collection. An empty id lets the store assign one.
func (c *Client) Create(ctx context.Context, token, collection, id string, fields Fields) (*Document, error) {
	query := url.Values{}
	if id != "" {
		query.Set("documentId", id)
	}
	var doc Document
	body := documentBody{Fields: fields}
	if err := c.do(ctx, token, http.MethodPost, c.url(c.Root()+"/"+collection, query), body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type patchOptions struct {
	mask         []string
	precondition *Precondition
}

// PatchOption scopes a Patch.
type PatchOption func(*patchOptions)

// WithMask restricts the patch to the named fields; fields outside the mask are
// left untouched. Without a mask the sent field set replaces the document.
func WithMask(paths ...string) PatchOption {
	return func(o *patchOptions) { o.mask = append(o.mask, paths...) }
}

// WithPrecondition guards the patch.
func WithPrecondition(p *Precondition) PatchOption {
	return func(o *patchOptions) { o.precondition = p }
}

// Patch updates collection/id and returns the stored document.
func (c *Client) Patch(ctx context.Context, token, collection, id string, fields Fields, opts ...PatchOption) (*Document, error) {
	var o patchOptions
	for _, opt := range opts {
		opt(&o)
	}

	query := url.Values{}
	for _, path := range o.mask {
		query.Add("updateMask.fieldPaths", path)
	}
	if p := o.precondition; p != nil {
		if p.Exists != nil {
			query.Set("currentDocument.exists", strconv.FormatBool(*p.Exists))
		}
		if p.UpdateTime != nil {
			query.Set("currentDocument.updateTime", p.UpdateTime.UTC().Format(time.RFC3339Nano))
		}
	}

	var doc Document
	body := documentBody{Fields: fields}
	if err := c.do(ctx, token, http.MethodPatch, c.url(c.DocumentName(collection, id), query), body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes collection/id. Deleting a missing document succeeds.
func (c *Client) Delete(ctx context.Context, token, collection, id string) error {
	return c.do(ctx, token, http.MethodDelete, c.url(c.DocumentName(collection, id), nil), nil, nil)
}

// Commit applies writes atomically: either all of them land or none do.
func (c *Client) Commit(ctx context.Context, token string, writes ...Write) (*CommitResult, error) {
	body := struct {
		Writes []Write `json:"writes"`
	}{Writes: writes}

	var result CommitResult
	if err := c.do(ctx, token, http.MethodPost, c.url(c.Root()+":commit", nil), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateWrite sets fields on collection/id. With a mask, only the masked fields change.
func (c *Client) UpdateWrite(collection, id string, fields Fields, mask ...string) Write {
	w := Write{Update: &documentBody{Name: c.DocumentName(collection, id), Fields: fields}}
	if len(mask) > 0 {
		w.UpdateMask = &DocumentMask{FieldPaths: mask}
	}
	return w
}

// TransformWrite applies server-side field transforms to collection/id.
func (c *Client) TransformWrite(collection, id string, transforms ...FieldTransform) Write {
	return Write{Transform: &DocumentTransform{
		Document:        c.DocumentName(collection, id),
		FieldTransforms: transforms,
	}}
}
