package aiclient

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

// FieldsDirective prefixes the prompt line that names the JSON fields the
// caller expects back. The static generator answers it without a backend.
const FieldsDirective = "Respond only with a JSON object with these fields:"

const staticModel = "static-v1"

var staticSentences = []string{
	"The lines show a steady pattern that favors patience and consistent effort over sudden leaps.",
	"There is a clear balance between practical judgment and an open, curious temperament.",
	"Depth in the main lines points to resilience when plans change without warning.",
	"The overall structure suggests energy that builds slowly and lasts a long time.",
	"Finer branches hint at a sensitivity to people that grows into a real strength.",
	"The proportions lean toward thoughtful decisions made after careful observation.",
}

var staticItems = []string{
	"Steady focus", "Warm communication", "Careful planning", "Creative problem solving",
	"Loyalty to close friends", "Curiosity about new ideas", "Calm under pressure",
	"Practical generosity", "Attention to detail", "Quiet confidence", "Adaptability",
	"Long term thinking",
}

// StaticGenerator returns deterministic content derived from the prompt text.
// It keeps the pipeline runnable with no text-generation backend configured.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (s *StaticGenerator) Generate(ctx context.Context, prompt string, _ GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return staticResponse(prompt), nil
}

func (s *StaticGenerator) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
		prompt.WriteByte('\n')
	}
	text := staticResponse(prompt.String())
	promptTokens := len(strings.Fields(prompt.String()))
	completionTokens := len(strings.Fields(text))
	return &Completion{
		ID:    "static-" + uuid.NewString(),
		Model: staticModel,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func (s *StaticGenerator) Ping(ctx context.Context) error {
	return ctx.Err()
}

// staticResponse builds a JSON object for the fields named by the directive
// line, or plain prose when the prompt carries no directive.
func staticResponse(prompt string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	seed := h.Sum64()

	fields := parseFieldsDirective(prompt)
	if len(fields) == 0 {
		return sentences(seed, 3)
	}

	out := make(map[string]any, len(fields))
	for i, f := range fields {
		fieldSeed := seed + uint64(i)*7919
		if f.list {
			out[f.name] = items(fieldSeed, 3)
		} else {
			out[f.name] = sentences(fieldSeed, 2)
		}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

type fieldSpec struct {
	name string
	list bool
}

// parseFieldsDirective reads "name (text), other (list)" after the directive
func parseFieldsDirective(prompt string) []fieldSpec {
	idx := strings.LastIndex(prompt, FieldsDirective)
	if idx < 0 {
		return nil
	}
	rest := prompt[idx+len(FieldsDirective):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ".")

	var fields []fieldSpec
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, kind, _ := strings.Cut(part, " ")
		fields = append(fields, fieldSpec{
			name: name,
			list: strings.Contains(kind, "list"),
		})
	}
	return fields
}

func sentences(seed uint64, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, staticSentences[(seed+uint64(i))%uint64(len(staticSentences))])
	}
	return strings.Join(parts, " ")
}

func items(seed uint64, n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, staticItems[(seed+uint64(i)*5)%uint64(len(staticItems))])
	}
	return out
}

