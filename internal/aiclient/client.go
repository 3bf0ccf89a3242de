package aiclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"

	ierrors "github.com/rostilos/codecrow/internal/errors"
	"github.com/rostilos/codecrow/internal/eventbus"
)

// Config configures Client.
type Config struct {
	BaseURL       string
	ServiceSecret string
	Logger        *zap.Logger
	HTTPClient    *http.Client
}

// Client drives the AI service's /analyze endpoint (spec §4.4).
type Client struct {
	baseURL       string
	serviceSecret string
	httpClient    *http.Client
	logger        *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		serviceSecret: cfg.ServiceSecret,
		httpClient:    cfg.HTTPClient,
		logger:        cfg.Logger,
	}
}

// Analyze posts req and consumes the NDJSON response stream on the calling
// goroutine, dispatching each event to sink sequentially. It returns the
// terminal result on a `result` event, or an error on `error`/transport
// failure/protocol mismatch (stream closed without a terminal event).
func (c *Client) Analyze(ctx context.Context, req Request, sink eventbus.Sink) (*eventbus.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, ierrors.Wrap("build ai request", "aiclient", req.ProjectID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, ierrors.Wrap("build ai request", "aiclient", req.ProjectID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-service-secret", c.serviceSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ierrors.Wrap("call ai service", "aiclient", req.ProjectID, fmt.Errorf("%w: %v", ierrors.ErrUpstreamAi, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, ierrors.Wrap("call ai service", "aiclient", req.ProjectID,
			fmt.Errorf("%w: status %d", ierrors.ErrUpstreamAi, resp.StatusCode))
	}

	return c.consumeStream(ctx, resp, sink, req.ProjectID)
}

// consumeStream reads one NDJSON line at a time, peeking the `type` field
// with jsonparser before fully decoding into the concrete event struct —
// mirroring agent-cli-wrapper/protocol's peek-then-switch decode idiom —
// and dispatches to sink sequentially (spec §4.4 concurrency contract).
func (c *Client) consumeStream(ctx context.Context, resp *http.Response, sink eventbus.Sink, projectID string) (*eventbus.Result, error) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	safeSink := eventbus.NewSafeSink(sink, c.logger)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, ierrors.Wrap("consume ai stream", "aiclient", projectID, err)
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		typ, err := jsonparser.GetString(line, "type")
		if err != nil {
			c.logger.Warn("ai stream event missing type field", zap.ByteString("line", line))
			continue
		}

		switch typ {
		case string(eventbus.KindStatus):
			var ev eventbus.Status
			if decodeInto(line, &ev, c.logger) {
				safeSink.Accept(ev)
			}
		case string(eventbus.KindProgress):
			var ev eventbus.Progress
			if decodeInto(line, &ev, c.logger) {
				safeSink.Accept(ev)
			}
		case string(eventbus.KindPartialIssue):
			var ev eventbus.PartialIssue
			if decodeInto(line, &ev, c.logger) {
				safeSink.Accept(ev)
			}
		case string(eventbus.KindWarning):
			var ev eventbus.Warning
			if decodeInto(line, &ev, c.logger) {
				safeSink.Accept(ev)
			}
		case string(eventbus.KindAiError):
			var ev eventbus.AiError
			if decodeInto(line, &ev, c.logger) {
				safeSink.Accept(ev)
			}
			return nil, ierrors.Wrap("ai stream", "aiclient", projectID, fmt.Errorf("%w: %s", ierrors.ErrUpstreamAi, ev.Message))
		case string(eventbus.KindResult):
			var ev eventbus.Result
			if !decodeInto(line, &ev, c.logger) {
				return nil, ierrors.Wrap("decode ai result", "aiclient", projectID, ierrors.ErrProtocolMismatch)
			}
			safeSink.Accept(ev)
			return &ev, nil
		default:
			c.logger.Debug("ignoring unknown ai stream event type", zap.String("type", typ))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, ierrors.Wrap("consume ai stream", "aiclient", projectID, err)
	}

	// Stream closed without a result or error event (spec §4.4: "If the
	// stream closes without either, the adapter raises a protocol-failure
	// error").
	return nil, ierrors.Wrap("consume ai stream", "aiclient", projectID, fmt.Errorf("%w: %w", ierrors.ErrUpstreamAi, ierrors.ErrProtocolMismatch))
}

func decodeInto(line []byte, v interface{}, logger *zap.Logger) bool {
	if err := json.Unmarshal(line, v); err != nil {
		logger.Warn("failed to decode ai stream event", zap.Error(err), zap.ByteString("line", line))
		return false
	}
	return true
}
