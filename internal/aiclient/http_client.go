package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/config"
	apperrors "go-palm-insight/internal/errors"
)

// maxResponseBytes bounds how much of a completion body is read
const maxResponseBytes = 4 << 20

// HTTPClient talks to an OpenAI-compatible chat completions endpoint
type HTTPClient struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	backoff    time.Duration
	log        logrus.FieldLogger
}

// NewHTTPClient creates a client for cfg.BaseURL
func NewHTTPClient(cfg config.AIConfig, log logrus.FieldLogger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		log:        log.WithField("component", "ai_client"),
	}
}

func (h *HTTPClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	completion, err := h.Complete(ctx, CompletionRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		UserID:      opts.UserID,
	})
	if err != nil {
		return "", err
	}
	text := completion.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewAIServiceError("empty completion", nil).WithDetail("completion_id", completion.ID)
	}
	return text, nil
}

type chatRequest struct {
	Model string `json:"model"`
	CompletionRequest
}

func (h *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body, err := json.Marshal(chatRequest{Model: h.model, CompletionRequest: req})
	if err != nil {
		return nil, apperrors.NewAIServiceError("failed to encode completion request", err)
	}

	start := time.Now()
	attempts := h.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		completion, retryable, err := h.do(ctx, body)
		if err == nil {
			h.log.WithFields(logrus.Fields{
				"model":            completion.Model,
				"attempt":          attempt + 1,
				"total_tokens":     completion.Usage.TotalTokens,
				"response_time_ms": time.Since(start).Milliseconds(),
			}).Debug("Completion received")
			return completion, nil
		}
		lastErr = err

		// 4xx client errors are non-retryable
		if !retryable || attempt == attempts-1 {
			break
		}

		h.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Completion attempt failed, retrying")

		select {
		case <-time.After(time.Duration(attempt+1) * h.backoff):
		case <-ctx.Done():
			return nil, apperrors.NewAIServiceError("completion canceled", ctx.Err())
		}
	}

	return nil, apperrors.NewAIServiceError(
		fmt.Sprintf("completion failed after %d attempts", attempts), lastErr)
}

// do sends one request and reports whether a failure is worth retrying
func (h *HTTPClient) do(ctx context.Context, body []byte) (*Completion, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited: status code %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	}

	var completion Completion
	if err := json.Unmarshal(payload, &completion); err != nil {
		return nil, false, fmt.Errorf("decode completion: %w", err)
	}
	return &completion, false, nil
}

// Ping lists models, which every compatible backend serves cheaply
func (h *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("text generation backend unhealthy: status code %d", resp.StatusCode)
	}
	return nil
}
