package aiclient

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"go-palm-insight/internal/config"
)

// GenerateOptions tune a single generation call
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	UserID      string
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	UserID      string    `json:"user,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the structured variant of a generation result
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Text returns the first choice's content, or "" when there is none
func (c *Completion) Text() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// TextGenerator is the text-generation capability the report generator
// consumes. Provider identity and failover stay behind it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}

// New builds the generator selected by cfg.Provider. The provider is decided
// here once and never re-inspected per call.
func New(cfg config.AIConfig, log logrus.FieldLogger) (TextGenerator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAICompatible:
		return NewHTTPClient(cfg, log), nil
	case config.ProviderStatic, "":
		return NewStaticGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown text generation provider %q", cfg.Provider)
	}
}
