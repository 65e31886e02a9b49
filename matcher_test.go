package datastoreMatching

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type completionStep struct {
	reply string
	err   error
}

// fakeCompletion plays back a scripted sequence of replies; the last step
// repeats once the script runs out.
type fakeCompletion struct {
	script     []completionStep
	calls      int
	lastPrompt string
}

func (f *fakeCompletion) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.lastPrompt = userPrompt
	step := f.script[len(f.script)-1]
	if f.calls < len(f.script) {
		step = f.script[f.calls]
	}
	f.calls++
	return step.reply, step.err
}

func newTestMatcher(client CompletionClient) *Matcher {
	return &Matcher{
		client:     client,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		maxRetries: 3,
		baseDelay:  time.Millisecond,
	}
}

func TestMatchParsesResponses(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		wantMatched    string
		wantConfidence float64
		wantReasoning  string
	}{
		{
			name:           "plain JSON",
			reply:          `{"matched_datastore": "PostgreSQL", "confidence": 0.95, "reasoning": "typo for PostgreSQL"}`,
			wantMatched:    "PostgreSQL",
			wantConfidence: 0.95,
			wantReasoning:  "typo for PostgreSQL",
		},
		{
			name:           "json code fence",
			reply:          "```json\n{\"matched_datastore\": \"MySQL\", \"confidence\": 0.8, \"reasoning\": \"case difference\"}\n```",
			wantMatched:    "MySQL",
			wantConfidence: 0.8,
			wantReasoning:  "case difference",
		},
		{
			name:           "JSON wrapped in prose",
			reply:          "Here is the result:\n{\"matched_datastore\": \"Redis\", \"confidence\": 1.0, \"reasoning\": \"exact\"}\nHope that helps.",
			wantMatched:    "Redis",
			wantConfidence: 1.0,
			wantReasoning:  "exact",
		},
		{
			name:           "no-match token maps to empty reference",
			reply:          `{"matched_datastore": "NOT FOUND", "confidence": 0.2, "reasoning": "unknown product"}`,
			wantMatched:    "",
			wantConfidence: 0.2,
			wantReasoning:  "unknown product",
		},
		{
			name:           "no-match token case-insensitive",
			reply:          `{"matched_datastore": "not found", "confidence": 0.1, "reasoning": "nothing close"}`,
			wantMatched:    "",
			wantConfidence: 0.1,
		},
		{
			name:           "confidence clamped to 1",
			reply:          `{"matched_datastore": "Redis", "confidence": 1.7, "reasoning": "overshoot"}`,
			wantMatched:    "Redis",
			wantConfidence: 1.0,
		},
		{
			name:           "confidence clamped to 0",
			reply:          `{"matched_datastore": "Redis", "confidence": -0.4, "reasoning": "undershoot"}`,
			wantMatched:    "Redis",
			wantConfidence: 0,
		},
		{
			name:           "missing confidence is a parse failure",
			reply:          `{"matched_datastore": "Redis", "reasoning": "no score"}`,
			wantMatched:    "",
			wantConfidence: 0,
			wantReasoning:  "Failed to parse LLM response",
		},
		{
			name:           "missing matched_datastore is a parse failure",
			reply:          `{"confidence": 0.9, "reasoning": "no name"}`,
			wantMatched:    "",
			wantConfidence: 0,
			wantReasoning:  "Failed to parse LLM response",
		},
		{
			name:           "non-JSON reply is a parse failure",
			reply:          "I could not find a match.",
			wantMatched:    "",
			wantConfidence: 0,
			wantReasoning:  "Failed to parse LLM response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeCompletion{script: []completionStep{{reply: tc.reply}}}
			got := newTestMatcher(fake).Match(context.Background(), "input", []string{"PostgreSQL", "MySQL", "Redis"})

			if got.InputName != "input" {
				t.Errorf("expected InputName %q, got %q", "input", got.InputName)
			}
			if got.MatchedReference != tc.wantMatched {
				t.Errorf("expected match %q, got %q", tc.wantMatched, got.MatchedReference)
			}
			if got.Confidence != tc.wantConfidence {
				t.Errorf("expected confidence %v, got %v", tc.wantConfidence, got.Confidence)
			}
			if tc.wantReasoning != "" && !strings.Contains(got.Reasoning, tc.wantReasoning) {
				t.Errorf("expected reasoning containing %q, got %q", tc.wantReasoning, got.Reasoning)
			}
			if got.RawResponse != tc.reply {
				t.Errorf("expected raw response preserved, got %q", got.RawResponse)
			}
		})
	}
}

func TestMatchRetriesTransportFailures(t *testing.T) {
	fake := &fakeCompletion{script: []completionStep{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{reply: `{"matched_datastore": "Redis", "confidence": 0.9, "reasoning": "recovered"}`},
	}}

	got := newTestMatcher(fake).Match(context.Background(), "redis", []string{"Redis"})

	if fake.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fake.calls)
	}
	if got.MatchedReference != "Redis" || got.Confidence != 0.9 {
		t.Errorf("expected recovered match, got %+v", got)
	}
}

func TestMatchExhaustsRetries(t *testing.T) {
	fake := &fakeCompletion{script: []completionStep{{err: errors.New("boom")}}}

	got := newTestMatcher(fake).Match(context.Background(), "redis", []string{"Redis"})

	if fake.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fake.calls)
	}
	if got.MatchedReference != "" || got.Confidence != 0 {
		t.Errorf("expected empty confidence-0 result, got %+v", got)
	}
	if !strings.Contains(got.Reasoning, "completion failed after 3 attempts") {
		t.Errorf("expected exhaustion reasoning, got %q", got.Reasoning)
	}
}

func TestMatchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeCompletion{script: []completionStep{{reply: "{}"}}}
	got := newTestMatcher(fake).Match(ctx, "redis", []string{"Redis"})

	if fake.calls != 0 {
		t.Errorf("expected no completion calls, got %d", fake.calls)
	}
	if got.Confidence != 0 || !strings.Contains(got.Reasoning, "Error during matching") {
		t.Errorf("expected absorbed failure, got %+v", got)
	}
}

func TestBuildMatchPrompt(t *testing.T) {
	prompt := buildMatchPrompt("PostGres", []string{"PostgreSQL", "MySQL"})

	for _, want := range []string{
		"INPUT DATASTORE: PostGres",
		"- PostgreSQL\n",
		"- MySQL\n",
		"MATCHING RULES:",
		noMatchToken,
		"OUTPUT FORMAT (JSON only, no other text):",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestMatchSendsPrompt(t *testing.T) {
	fake := &fakeCompletion{script: []completionStep{
		{reply: `{"matched_datastore": "PostgreSQL", "confidence": 0.9, "reasoning": "r"}`},
	}}
	newTestMatcher(fake).Match(context.Background(), "PostGres 14", []string{"PostgreSQL"})

	if !strings.Contains(fake.lastPrompt, "PostGres 14") {
		t.Errorf("prompt does not carry the input name: %q", fake.lastPrompt)
	}
	if !strings.Contains(fake.lastPrompt, "- PostgreSQL") {
		t.Errorf("prompt does not carry the reference list: %q", fake.lastPrompt)
	}
}
