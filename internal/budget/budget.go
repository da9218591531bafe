// Package budget provides token estimation for prompts and answers. Because
// the service supports multiple LLM backends with different tokenizers, this
// package uses a conservative character-based heuristic: 1 token ≈ 4
// characters (English prose and code).
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens is the input budget above which the generator
	// logs a warning. It fits 8k-context models while leaving room for the
	// answer.
	DefaultMaxContextTokens = 6000
)

// Usage is an estimated token account for one generation.
type Usage struct {
	// PromptTokens covers the system and user messages sent to the model.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens covers the generated answer.
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int `json:"total_tokens"`
}

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Prompt returns the messages sent for a system/user prompt pair.
func Prompt(systemPrompt, userPrompt string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
}

// EstimateUsage accounts for one system/user prompt pair and its answer.
func EstimateUsage(systemPrompt, userPrompt, answer string) Usage {
	prompt := EstimateMessages(Prompt(systemPrompt, userPrompt))
	completion := Estimate(answer)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
