package datastoreMatching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// noMatchToken is the value the prompt tells the model to return when no
// reference entry fits. It maps to an empty MatchedReference.
const noMatchToken = "NOT FOUND"

const matchSystemPrompt = "You are a datastore matching assistant that matches input datastore names against an approved reference list."

// MatchResult is the outcome of matching one input name, parse and transport
// failures included: those carry confidence 0 and the failure in Reasoning.
type MatchResult struct {
	InputName        string
	MatchedReference string
	Confidence       float64
	Reasoning        string
	RawResponse      string
}

// llmReply mirrors the JSON object the prompt demands. Pointer fields
// distinguish a missing key from a zero value.
type llmReply struct {
	MatchedDatastore *string  `json:"matched_datastore"`
	Confidence       *float64 `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// Matcher matches input datastore names against the reference list through
// an LLM completion call.
type Matcher struct {
	client     CompletionClient
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	verbose    bool
}

// NewMatcher builds a matcher. The limiter is shared with the EOL client so
// all outbound calls pace against the same budget.
func NewMatcher(client CompletionClient, limiter *rate.Limiter, cfg Config) *Matcher {
	return &Matcher{
		client:     client,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		verbose:    cfg.Verbose,
	}
}

// Match sends one input name with the full reference list to the model and
// parses its reply. It always returns a result: transport failures are
// retried with exponential backoff and, once retries are spent, absorbed
// into a confidence-0 result, as are unparseable replies.
func (m *Matcher) Match(ctx context.Context, inputName string, reference []string) MatchResult {
	log.Printf("Matching datastore: %s", inputName)

	if err := m.limiter.Wait(ctx); err != nil {
		return failedMatch(inputName, fmt.Errorf("rate limiter: %w", err))
	}

	prompt := buildMatchPrompt(inputName, reference)

	var raw string
	var err error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		raw, err = m.client.Complete(ctx, matchSystemPrompt, prompt)
		if err == nil {
			break
		}
		log.Printf("Completion attempt %d failed: %v", attempt, err)
		if attempt < m.maxRetries {
			backoff := m.baseDelay << (attempt - 1)
			log.Printf("Retrying in %v...", backoff)
			time.Sleep(backoff)
		}
	}
	if err != nil {
		log.Printf("Completion failed after %d attempts: %v", m.maxRetries, err)
		return failedMatch(inputName, fmt.Errorf("completion failed after %d attempts: %w", m.maxRetries, err))
	}

	if m.verbose {
		log.Printf("Model response for %q: %s", inputName, raw)
	}
	return parseMatchResponse(inputName, raw)
}

func buildMatchPrompt(inputName string, reference []string) string {
	var formattedReference strings.Builder
	for _, name := range reference {
		formattedReference.WriteString(fmt.Sprintf("- %s\n", name))
	}

	return fmt.Sprintf(`TASK: Match the input datastore to the most appropriate ACAT reference value.

INPUT DATASTORE: %s

ACAT REFERENCE LIST:
%s
MATCHING RULES:
1. Handle typos: "PostGres" -> "PostgreSQL"
2. Ignore case: "mysql" = "MySQL"
3. Ignore special chars: "PostGres: 14.6" = "PostgreSQL 14.6"
4. Match closest version if exact not found
5. Product name MUST match (PostgreSQL is not MySQL)
6. NEVER match different products
7. Strip version suffixes: ".x", "x", "-log"
8. Ignore qualifiers: "SP2", "R2", "Enterprise" unless in reference

Provide confidence score 0.0-1.0:
- 1.0 = Exact match
- 0.8-0.95 = Very confident (minor differences)
- 0.6-0.75 = Moderate confidence (unclear version)
- < 0.6 = Low confidence (product unclear or not in list)

OUTPUT FORMAT (JSON only, no other text):
{
  "matched_datastore": "exact reference name from list or 'NOT FOUND'",
  "confidence": 0.95,
  "reasoning": "brief explanation of match"
}`, inputName, formattedReference.String())
}

// parseMatchResponse extracts the JSON object from a model reply. Replies
// wrapped in markdown code fences or surrounded by prose are tolerated.
func parseMatchResponse(inputName, raw string) MatchResult {
	text := stripCodeFence(raw)

	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart == -1 || jsonEnd <= jsonStart {
		log.Printf("No valid JSON found in model response")
		return parseFailure(inputName, raw, fmt.Errorf("no JSON object in response"))
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &reply); err != nil {
		log.Printf("Failed to parse JSON: %v", err)
		return parseFailure(inputName, raw, err)
	}
	if reply.MatchedDatastore == nil || reply.Confidence == nil {
		return parseFailure(inputName, raw, fmt.Errorf("missing required fields in response"))
	}

	matched := strings.TrimSpace(*reply.MatchedDatastore)
	confidence := *reply.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	log.Printf("Match result: %s (confidence: %.2f)", matched, confidence)
	if strings.EqualFold(matched, noMatchToken) {
		matched = ""
	}

	return MatchResult{
		InputName:        inputName,
		MatchedReference: matched,
		Confidence:       confidence,
		Reasoning:        reply.Reasoning,
		RawResponse:      raw,
	}
}

func parseFailure(inputName, raw string, err error) MatchResult {
	return MatchResult{
		InputName:   inputName,
		Reasoning:   fmt.Sprintf("Failed to parse LLM response: %v", err),
		RawResponse: raw,
	}
}

func failedMatch(inputName string, err error) MatchResult {
	return MatchResult{
		InputName: inputName,
		Reasoning: fmt.Sprintf("Error during matching: %v", err),
	}
}

// stripCodeFence unwraps a ```json or ``` fenced block when the model adds
// one despite the JSON-only instruction.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start == -1 {
			continue
		}
		rest := text[start+len(fence):]
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return text
}
