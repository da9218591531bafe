package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestEstimate(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]int{
		"":                       0,
		"a":                      1, // any non-empty text costs at least one token
		"abcde":                  1,
		"abcdefgh":               2,
		strings.Repeat("x", 400): 100,
	} {
		if got := Estimate(in); got != want {
			t.Errorf("Estimate(%d chars) = %d, want %d", len(in), got, want)
		}
	}
}

func TestEstimateMessages(t *testing.T) {
	t.Parallel()

	// Per message: 4 framing + 1 for "user" + 2 for "hello world".
	got := EstimateMessages([]*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	})
	if got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func TestPrompt_Roles(t *testing.T) {
	t.Parallel()

	msgs := Prompt("sys", "question")
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("want [system user], got %+v", msgs)
	}
	if msgs[0].Content != "sys" || msgs[1].Content != "question" {
		t.Errorf("contents not carried through: %+v", msgs)
	}
}

func TestEstimateUsage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                 string
		system, user, answer string
		want                 Usage
	}{
		// system 4+1+1, user 4+1+2, answer 2
		{"typical", "sys", "hello world", "12345678", Usage{PromptTokens: 13, CompletionTokens: 2, TotalTokens: 15}},
		// empty messages still pay framing and role
		{"empty", "", "", "", Usage{PromptTokens: 10, TotalTokens: 10}},
	}
	for _, tc := range cases {
		if got := EstimateUsage(tc.system, tc.user, tc.answer); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}
