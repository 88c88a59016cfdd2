package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/splitmate/billscan/internal/common"
)

// MinInputLength is the floor below which recognized text is not worth an
// inference call.
const MinInputLength = 10

// Config for the inference client. The default endpoint speaks the
// OpenAI-compatible chat/completions dialect.
type Config struct {
	BaseURL     string        // default https://api.groq.com/openai/v1
	APIKey      string        // if empty, the call will be rejected upstream by config validation
	Model       string        // default "llama-3.3-70b-versatile"
	Temperature float32       // 0 for deterministic extraction
	MaxTokens   int           // bounded output budget, default 2048
	Timeout     time.Duration // per-request http timeout
	MaxAttempts int           // total transport attempts, default 3
	BackoffBase time.Duration // default 2s
	BackoffCap  time.Duration // default 10s
}

// Client implements BillExtractor. Constructed once per process and passed
// explicitly; it holds no mutable state beyond the http client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ExtractBill sends the recognized text to the inference service and returns
// the schema-checked JSON reply. Transport failures are retried with
// exponential backoff and surface as transient once exhausted; parse and
// schema failures are input-shape problems and are never retried.
func (c *Client) ExtractBill(ctx context.Context, text string) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	if len(strings.TrimSpace(text)) < MinInputLength {
		return nil, common.NewExtractionError("llm", "OCR text is too short or empty", nil)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": BuildUserPrompt(text)},
		},
	}

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"trace_id", common.TraceIDFromContext(ctx),
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(text),
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.postWithRetry(ctx, rid, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return nil, common.NewExtractionError("llm", "undecodable inference response", err)
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		c.logger.Error("llm.extract.empty_response", "req_id", rid)
		return nil, common.NewExtractionError("llm", "inference service returned an empty reply", nil)
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	c.logger.Info("llm.extract.usage",
		"req_id", rid,
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"total_tokens", cc.Usage.TotalTokens,
	)

	if !json.Valid(content) {
		c.logger.Error("llm.extract.invalid_json", "req_id", rid, "content", truncate(string(content), 1000))
		return nil, common.NewExtractionError("llm", "model returned invalid JSON", nil)
	}
	if err := ValidateJSONAgainstSchema(BuildBillJSONSchema(), content); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed", "req_id", rid, "error", err)
		return nil, common.NewExtractionError("llm", "model reply missing required bill fields", err)
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"reply_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// postWithRetry retries transport-level failures (network errors, 429, 5xx)
// with exponential backoff. Non-retryable HTTP statuses short-circuit.
func (c *Client) postWithRetry(ctx context.Context, rid, url string, body map[string]any) ([]byte, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, common.NewInternalError("llm", "encode request", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BackoffBase
	bo.MaxInterval = c.cfg.BackoffCap
	bo.Multiplier = 2

	var raw []byte
	attempt := 0
	op := func() error {
		attempt++
		var perr error
		raw, perr = c.post(ctx, url, bs)
		if perr != nil {
			c.logger.Warn("llm.http.attempt_failed",
				"req_id", rid, "attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "error", perr)
		}
		return perr
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		var pe *common.PipelineError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, common.NewTransientError("llm",
			fmt.Sprintf("inference service unavailable after %d attempts", attempt), err)
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(common.NewInternalError("llm", "build request", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // network-level: retryable
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("llm.http.body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("inference status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	default:
		return nil, backoff.Permanent(common.NewExtractionError("llm",
			fmt.Sprintf("inference request rejected with status %d", resp.StatusCode), nil))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
