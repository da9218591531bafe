// Package quality scores how well a generated answer is supported by the
// passages it was generated from, using the configured LLM as a judge.
package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/54b3r/groundrag/internal/provider"
	"github.com/54b3r/groundrag/internal/rag"
)

// Rubric is the system prompt sent to the judge model.
const Rubric = "You are a strict evaluator. Given the CONTEXT and an ANSWER, return a single float between 0 and 1 " +
	"indicating how well the answer is directly supported by the context (1 = fully supported, 0 = unsupported). " +
	"Respond with only the number."

// Judge computes groundedness scores through a Generator.
type Judge struct {
	gen provider.Generator
}

// NewJudge returns a Judge that asks gen for scores.
func NewJudge(gen provider.Generator) *Judge {
	return &Judge{gen: gen}
}

// Score returns the groundedness of answer against contexts in [0,1].
// Malformed judge output scores 0. A generator failure is returned wrapped
// in rag.ErrJudgeUnavailable; callers treat it as "groundedness unknown".
func (j *Judge) Score(ctx context.Context, answer string, contexts []string) (float64, error) {
	raw, err := j.gen.Generate(ctx, Rubric, Prompt(answer, contexts))
	if err != nil {
		return 0, fmt.Errorf("quality: judge call failed: %w: %w", rag.ErrJudgeUnavailable, err)
	}
	return ParseScore(raw), nil
}

// Prompt renders the judge's user message.
func Prompt(answer string, contexts []string) string {
	return "CONTEXT:\n" + strings.Join(contexts, "\n\n") + "\n\nANSWER:\n" + answer + "\n\nScore:"
}

// ParseScore reads the first whitespace-delimited token of raw as a float
// and clamps it to [0,1]. Anything unparseable, including NaN, yields 0.
func ParseScore(raw string) float64 {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0
	}
	// Out-of-range literals parse to ±Inf with ErrRange and are clamped below.
	v, err := strconv.ParseFloat(fields[0], 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
