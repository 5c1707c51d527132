// Package backend is the HTTP client for the conversation-persistence
// API and the token-streaming chat endpoint. Both conversation classes
// (normal and ASCII-art) share one client parameterized by namespace.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/logging"
	"github.com/odvcencio/parley/pkg/schema"
)

// Namespace selects the conversation class the client talks to.
type Namespace string

const (
	NamespaceNormal Namespace = "conversations"
	NamespaceASCII  Namespace = "ascii-conversations"
)

// ChatPath returns the streaming chat endpoint for the namespace.
func (n Namespace) ChatPath() string {
	if n == NamespaceASCII {
		return "/ascii/chat"
	}
	return "/chat"
}

// QueryParam returns the address query parameter carrying the active
// conversation id for this namespace.
func (n Namespace) QueryParam() string {
	if n == NamespaceASCII {
		return "ascii-conv"
	}
	return "conv"
}

// DefaultTitle returns the placeholder title for new conversations of
// this class.
func (n Namespace) DefaultTitle() string {
	if n == NamespaceASCII {
		return schema.ASCIIDefaultTitle
	}
	return schema.DefaultTitle
}

// Client issues requests against one namespace of the backend.
type Client struct {
	origin     string
	ns         Namespace
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTransport wraps the client's transport, typically with a
// LoggingTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// NewClient creates a client for the given backend origin and
// namespace. The origin is the base URL all endpoint paths are
// relative to.
func NewClient(origin string, ns Namespace, opts ...Option) *Client {
	c := &Client{
		origin:     strings.TrimRight(origin, "/"),
		ns:         ns,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns the conversation class this client targets.
func (c *Client) Namespace() Namespace {
	return c.ns
}

// SetTimeout updates the request timeout (0 disables it). Streaming
// requests use their own context deadline instead.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

func (c *Client) nsPath(parts ...string) string {
	return c.origin + "/" + string(c.ns) + "/" + strings.Join(parts, "/")
}

// ListConversations fetches the conversation list. Records are
// normalized to Conversations with empty message lists; bodies load
// lazily through GetMessages.
func (c *Client) ListConversations(ctx context.Context) ([]schema.Conversation, error) {
	var items []schema.ConversationListItem
	if err := c.getJSON(ctx, c.nsPath("list"), &items); err != nil {
		return nil, err
	}

	out := make([]schema.Conversation, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		out = append(out, it.Normalize(c.ns.DefaultTitle()))
	}
	return out, nil
}

// CreateConversation asks the server for a new conversation id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var resp schema.CreateResponse
	if err := c.postJSON(ctx, c.nsPath("create"), nil, &resp); err != nil {
		return "", err
	}
	if resp.ConversationID == "" {
		return "", perrors.New(perrors.ErrCodeNetworkFailure, "create returned empty conversation id")
	}
	return resp.ConversationID, nil
}

// DeleteConversation deletes by id. A 404 surfaces as ErrCodeNotFound;
// callers treat that as already-gone.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.nsPath(id), nil)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeInternal, "creating delete request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeNetworkFailure, "delete conversation").WithContext("id", id)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// GetMessages fetches the message history for a conversation. A 404
// surfaces as ErrCodeNotFound; the caller decides whether that means
// "no history yet".
func (c *Client) GetMessages(ctx context.Context, id string) ([]schema.Message, error) {
	var resp schema.MessagesResponse
	if err := c.getJSON(ctx, c.nsPath(id, "messages"), &resp); err != nil {
		return nil, err
	}
	return schema.NormalizeMessages(resp.Messages), nil
}

// GetConfig fetches the per-conversation configuration document.
func (c *Client) GetConfig(ctx context.Context, id string) (schema.ConfigDocument, error) {
	var doc schema.ConfigDocument
	if err := c.getJSON(ctx, c.nsPath(id, "config"), &doc); err != nil {
		return schema.ConfigDocument{}, err
	}
	return doc, nil
}

// SaveConfig writes a conversation's configuration. The temperature is
// expected to be clamped by the caller; the document carries the
// conversation id in the body per the backend contract.
func (c *Client) SaveConfig(ctx context.Context, doc schema.ConfigDocument) error {
	if doc.ConversationID == "" {
		return perrors.New(perrors.ErrCodeInvalidInput, "config document missing conversation id")
	}
	return c.postJSON(ctx, c.nsPath("config"), doc, nil)
}

// GenerateTitle asks the server to compute a title for a conversation.
func (c *Client) GenerateTitle(ctx context.Context, id string) (string, error) {
	var resp schema.TitleResponse
	if err := c.postJSON(ctx, c.nsPath(id, "generate-title"), nil, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Title), nil
}

// GetSettings fetches the application settings. The settings surface
// is shared across namespaces.
func (c *Client) GetSettings(ctx context.Context) (schema.Settings, error) {
	var s schema.Settings
	if err := c.getJSON(ctx, c.origin+"/settings", &s); err != nil {
		return schema.Settings{}, err
	}
	return s, nil
}

// SaveSettings writes the application settings.
func (c *Client) SaveSettings(ctx context.Context, s schema.Settings) error {
	return c.postJSON(ctx, c.origin+"/settings", s, nil)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeInternal, "creating request")
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return perrors.Wrap(err, perrors.ErrCodeInternal, "marshaling request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeInternal, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeNetworkFailure, "request failed").
			WithContext("url", req.URL.String()).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return perrors.Wrap(err, perrors.ErrCodeNetworkFailure, "decoding response").
			WithContext("url", req.URL.String())
	}
	return nil
}

// statusError converts a non-2xx response into a structured error,
// preserving the status code and any detail the server included.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	detail := resp.Status
	var errBody struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &errBody) == nil && errBody.Detail != "" {
		detail = errBody.Detail
	}

	code := perrors.ErrCodeNetworkFailure
	if resp.StatusCode == http.StatusNotFound {
		code = perrors.ErrCodeNotFound
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500

	c.logger.Warn(logging.CategoryNetwork, "http_error", detail, map[string]any{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	})

	return perrors.New(code, fmt.Sprintf("backend returned %d: %s", resp.StatusCode, detail)).
		WithContext("status", resp.StatusCode).
		WithRetryable(retryable)
}
