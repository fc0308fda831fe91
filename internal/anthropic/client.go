// Package anthropic is the Messages API client behind the generic provider
// interface. It authenticates with a bearer token obtained from a TokenSource
// on every call and never retries on its own.
package anthropic

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	log "github.com/nmhq/claude-bridge/internal/logging"
	"github.com/nmhq/claude-bridge/sdk/provider"
)

const (
	messagesPath     = "/v1/messages"
	anthropicVersion = "2023-06-01"
	oauthBetaHeader  = "oauth-2025-04-20"
)

// TokenSource yields a valid bearer token for one outbound call. The
// credential manager satisfies this.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// GenerationRecord summarizes one completed generation for observers.
// Text is only populated when the stream ended without usage data, so the
// observer can estimate completion tokens from it.
type GenerationRecord struct {
	RequestID    string
	Model        string
	Usage        provider.Usage
	FinishReason provider.FinishReason
	Streamed     bool
	Estimated    bool
	Text         string
}

// UsageObserver receives a record after each generation completes. Observers
// must not block; recording is best-effort.
type UsageObserver interface {
	ObserveGeneration(ctx context.Context, rec GenerationRecord)
}

// ClientConfig tunes the client. Zero fields take defaults.
type ClientConfig struct {
	// BaseURL is the API origin, default https://api.anthropic.com.
	BaseURL string

	// RequestTimeout caps non-streaming calls. Streaming calls are bounded by
	// the caller's context. Default 10 minutes.
	RequestTimeout time.Duration

	// StreamIdleTimeout closes streams whose upstream has gone silent.
	// Zero disables idle detection.
	StreamIdleTimeout time.Duration

	// HTTPClient must not carry a Timeout; per-call deadlines come from
	// contexts so streaming responses are not cut off mid-body.
	HTTPClient *http.Client
}

// Client implements provider.LanguageModel against the Messages API.
type Client struct {
	baseURL           string
	tokens            TokenSource
	client            *http.Client
	requestTimeout    time.Duration
	streamIdleTimeout time.Duration
	observer          UsageObserver
}

// NewClient creates a client that authenticates through tokens.
func NewClient(tokens TokenSource, cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:           cfg.BaseURL,
		tokens:            tokens,
		client:            client,
		requestTimeout:    cfg.RequestTimeout,
		streamIdleTimeout: cfg.StreamIdleTimeout,
	}
}

// SetUsageObserver registers an observer for completed generations.
func (c *Client) SetUsageObserver(observer UsageObserver) {
	c.observer = observer
}

var _ provider.LanguageModel = (*Client)(nil)

// Generate performs a single-shot call and parses the complete response.
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	requestID := uuid.NewString()
	body, err := c.post(ctx, req, false, requestID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	resp := parseMessageResponse(data)
	if c.observer != nil {
		c.observer.ObserveGeneration(ctx, GenerationRecord{
			RequestID:    requestID,
			Model:        req.Model,
			Usage:        resp.Usage,
			FinishReason: resp.FinishReason,
		})
	}
	return resp, nil
}

// Stream starts a streaming call and returns the event iterator. The caller
// owns the stream and must drain or close it.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.EventStream, error) {
	requestID := uuid.NewString()
	body, err := c.post(ctx, req, true, requestID)
	if err != nil {
		return nil, err
	}

	stream := newEventStream(ctx, body, c.streamIdleTimeout)
	if c.observer == nil {
		return stream, nil
	}
	return &observedStream{
		EventStream: stream,
		ctx:         ctx,
		observer:    c.observer,
		requestID:   requestID,
		model:       req.Model,
	}, nil
}

// post issues the Messages API request and returns the decoded response body
// for 2xx answers. Non-2xx answers are drained into a StatusError.
func (c *Client) post(ctx context.Context, req *provider.Request, stream bool, requestID string) (io.ReadCloser, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := buildRequestBody(req)
	if err != nil {
		return nil, err
	}
	if stream {
		if payload, err = sjson.SetBytes(payload, "stream", true); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("anthropic-beta", oauthBetaHeader)
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	httpReq.Header.Set("X-Request-Id", requestID)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, readErr := io.ReadAll(body)
		_ = body.Close()
		if readErr != nil {
			log.Debugf("anthropic: failed to read error body for status %d: %v", resp.StatusCode, readErr)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	return body, nil
}

// parseMessageResponse maps a non-streaming response document onto the
// generic response shape.
func parseMessageResponse(data []byte) *provider.Response {
	doc := gjson.ParseBytes(data)

	resp := &provider.Response{
		FinishReason: mapStopReason(doc.Get("stop_reason").String()),
		Usage: provider.Usage{
			PromptTokens:     int(doc.Get("usage.input_tokens").Int()),
			CompletionTokens: int(doc.Get("usage.output_tokens").Int()),
		},
	}

	var text bytes.Buffer
	doc.Get("content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			text.WriteString(block.Get("text").String())
		case "tool_use":
			args := block.Get("input").Raw
			if args == "" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: args,
			})
		}
		return true
	})
	resp.Text = text.String()
	return resp
}

// observedStream forwards events while tracking enough state to report usage
// once the stream terminates, including streams that end without a finish
// frame (in which case completion tokens must be estimated by the observer).
type observedStream struct {
	*EventStream
	ctx       context.Context
	observer  UsageObserver
	requestID string
	model     string

	text     bytes.Buffer
	finish   provider.FinishReason
	reported bool
}

func (s *observedStream) Next() (*provider.Event, error) {
	event, err := s.EventStream.Next()
	if event != nil {
		switch event.Type {
		case provider.EventTextDelta:
			s.text.WriteString(event.Text)
		case provider.EventFinish:
			s.finish = event.FinishReason
		}
		return event, err
	}
	if err != nil {
		s.report()
	}
	return nil, err
}

func (s *observedStream) Close() error {
	err := s.EventStream.Close()
	s.report()
	return err
}

func (s *observedStream) report() {
	if s.reported {
		return
	}
	s.reported = true

	rec := GenerationRecord{
		RequestID:    s.requestID,
		Model:        s.model,
		Usage:        s.EventStream.Usage(),
		FinishReason: s.finish,
		Streamed:     true,
	}
	if !s.EventStream.FinishSeen() {
		rec.Estimated = true
		rec.Text = s.text.String()
	}
	s.observer.ObserveGeneration(s.ctx, rec)
}
