package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	perrors "github.com/odvcencio/parley/pkg/errors"
	"github.com/odvcencio/parley/pkg/schema"
)

// ChatRequest is the body of the streaming chat endpoint. Messages are
// sent in wire form (role and content only). The tool fields and
// ToolHint ride along opaquely for the ASCII-art class; the client
// never interprets them.
type ChatRequest struct {
	ConversationID  string               `json:"conversation_id"`
	ModelName       string               `json:"model_name,omitempty"`
	SystemDirective string               `json:"system_directive,omitempty"`
	Temperature     float64              `json:"temperature"`
	Messages        []schema.WireMessage `json:"messages"`
	ToolWidth       int                  `json:"tool_width,omitempty"`
	ToolHeight      int                  `json:"tool_height,omitempty"`
	ToolPrompt      string               `json:"tool_prompt,omitempty"`
	ToolHint        string               `json:"tool_hint,omitempty"`
}

// StreamChat posts a chat exchange and consumes the response as an
// incremental text stream. Token chunks arrive on the first channel;
// at most one error arrives on the second. Both close when the stream
// ends. The request is never retried once streaming has begun.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (<-chan string, <-chan error) {
	chunkChan := make(chan string, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(chunkChan)

		if err := c.executeStreamRequest(ctx, req, chunkChan); err != nil {
			errChan <- err
		}
	}()

	return chunkChan, errChan
}

func (c *Client) executeStreamRequest(ctx context.Context, req ChatRequest, chunkChan chan<- string) error {
	req.Temperature = schema.ClampTemperature(req.Temperature)

	body, err := json.Marshal(req)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeInternal, "marshaling chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+c.ns.ChatPath(), bytes.NewReader(body))
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeInternal, "creating chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// The default client timeout would kill a long-running stream, so
	// streaming requests rely on ctx alone.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrCodeStreamFailure, "chat request failed").
			WithContext("conversation", req.ConversationID).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}

	return c.consumeStream(ctx, resp.Body, chunkChan)
}

func (c *Client) consumeStream(ctx context.Context, r io.Reader, chunkChan chan<- string) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			select {
			case chunkChan <- string(buf[:n]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return perrors.Wrap(err, perrors.ErrCodeStreamFailure, "reading chat stream")
		}
	}
}
