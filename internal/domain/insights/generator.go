package insights

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/thriveai/companion/internal/domain/metrics"
)

// Generator turns recent readings into a short narrative summary.
type Generator interface {
	Summarize(ctx context.Context, readings []metrics.Metric) (string, error)
}

const summaryPrompt = `You are a friendly health companion. Summarize the
user's recent readings in two or three plain sentences. Be encouraging,
mention anything notable, and never give a diagnosis or medical advice.`

type openAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator summarizes readings with a chat completion.
func NewOpenAIGenerator(apiKey, model string) Generator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAIGenerator{client: openai.NewClient(apiKey), model: model}
}

func (g *openAIGenerator) Summarize(ctx context.Context, readings []metrics.Metric) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summaryPrompt},
			{Role: openai.ChatMessageRoleUser, Content: formatReadings(readings)},
		},
		MaxTokens: 200,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func formatReadings(readings []metrics.Metric) string {
	if len(readings) == 0 {
		return "No recent readings."
	}
	var b strings.Builder
	b.WriteString("Recent readings:\n")
	for _, m := range readings {
		fmt.Fprintf(&b, "- %s: %g %s at %s\n", m.Kind, m.Value, m.Unit, m.RecordedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}

type rulesGenerator struct{}

// NewRulesGenerator is the deterministic fallback used when no model is
// configured or the model call fails.
func NewRulesGenerator() Generator {
	return rulesGenerator{}
}

func (rulesGenerator) Summarize(ctx context.Context, readings []metrics.Metric) (string, error) {
	if len(readings) == 0 {
		return "No readings recorded yet. Log a measurement or connect your health record to get started.", nil
	}

	kinds := make([]string, 0, len(readings))
	for _, m := range readings {
		kinds = append(kinds, strings.ReplaceAll(m.Kind, "_", " "))
	}
	return fmt.Sprintf(
		"You have %d recent readings covering %s. Keep logging regularly to build a clearer picture over time.",
		len(readings), strings.Join(kinds, ", "),
	), nil
}
