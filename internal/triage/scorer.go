package triage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Scorer rates how critical a message is on a [0, 1] scale
type Scorer interface {
	Score(ctx context.Context, subject, snippet string) (float64, error)
}

// snippetLimit keeps prompts small; Gmail snippets rarely exceed it
const snippetLimit = 800

const promptTemplate = "You are an email triage model. " +
	"Output ONLY a number between 0 and 1 representing how critical this message is " +
	"for immediate attention by a portfolio manager at a hedge fund. " +
	"Key factors: trade failures, investor inquiries, compliance alerts. " +
	"Ignore routine market research.\n\n" +
	"Subject: %s\nBody: %s"

// OpenAIScorer scores messages with a single chat completion call
type OpenAIScorer struct {
	client openai.Client
	model  shared.ChatModel
}

// NewOpenAIScorer creates a scorer for the given model
func NewOpenAIScorer(apiKey, model string) *OpenAIScorer {
	return &OpenAIScorer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  shared.ChatModel(model),
	}
}

// Score asks the model for an importance rating. Callers treat any
// error as score zero so a scoring outage degrades messages to the
// digest tier instead of dropping them.
func (s *OpenAIScorer) Score(ctx context.Context, subject, snippet string) (float64, error) {
	prompt := fmt.Sprintf(promptTemplate, subject, truncateSnippet(snippet))

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Model:       s.model,
		MaxTokens:   openai.Int(4),
		Temperature: openai.Float(0.0),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to score message: %w", err)
	}
	if len(completion.Choices) == 0 {
		return 0, fmt.Errorf("no completion choices returned")
	}

	return parseScore(completion.Choices[0].Message.Content)
}

// truncateSnippet caps the snippet length, backing up so the cut never
// lands inside a multi-byte rune
func truncateSnippet(s string) string {
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// parseScore extracts the numeric rating from a model reply
func parseScore(reply string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q: %w", reply, err)
	}
	return clampScore(v), nil
}

// clampScore bounds a model reply to [0, 1]
func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
