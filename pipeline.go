package datastoreMatching

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// EolQuery is the product/version pair extracted from an input name for
// enrichment. Version may be empty; the lookup then matches the newest cycle.
type EolQuery struct {
	Product string
	Version string
}

var (
	versionToken   = regexp.MustCompile(`^(?i)v?\d+(\.\d+)*([.\-]x)?(-log)?$`)
	parenQualifier = regexp.MustCompile(`\s*\([^)]*\)$`)
)

// extractProductVersion splits an input name into product and version for an
// EOL query. Trailing parenthesized qualifiers are dropped; the last token
// that looks like a version number (optional v prefix, dotted digits,
// optional .x or -log tail) becomes the version and anything after it is
// discarded. Without such a token the whole name is the product.
func extractProductVersion(name string) EolQuery {
	name = strings.TrimSpace(name)
	for {
		stripped := strings.TrimSpace(parenQualifier.ReplaceAllString(name, ""))
		if stripped == name {
			break
		}
		name = stripped
	}

	tokens := strings.Fields(name)
	for i := len(tokens) - 1; i > 0; i-- {
		token := strings.TrimRight(tokens[i], ",;:")
		if !versionToken.MatchString(token) {
			continue
		}
		version := strings.TrimPrefix(strings.TrimPrefix(token, "v"), "V")
		product := strings.TrimRight(strings.Join(tokens[:i], " "), " :,-")
		return EolQuery{Product: product, Version: version}
	}
	return EolQuery{Product: name}
}

// Pipeline runs the match-then-enrich flow over a batch of input rows.
type Pipeline struct {
	matcher   *Matcher
	eol       *EOLClient
	threshold float64
	verbose   bool
	now       func() time.Time
}

// NewPipeline wires a pipeline from already-built components.
func NewPipeline(matcher *Matcher, eol *EOLClient, cfg Config) *Pipeline {
	return &Pipeline{
		matcher:   matcher,
		eol:       eol,
		threshold: cfg.ConfidenceThreshold,
		verbose:   cfg.Verbose,
		now:       time.Now,
	}
}

// BuildPipeline assembles the full stack from config: completion client,
// shared rate limiter, matcher and EOL client. cache may be nil.
func BuildPipeline(cfg Config, cache CycleCache) (*Pipeline, error) {
	client, err := NewCompletionClient(cfg)
	if err != nil {
		return nil, err
	}
	limiter := newLimiter(cfg.RateLimitDelay)
	matcher := NewMatcher(client, limiter, cfg)
	eol := NewEOLClient(cfg, limiter, cache)
	return NewPipeline(matcher, eol, cfg), nil
}

// newLimiter spaces outbound calls one per delay interval.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Run matches every input row against the reference list and enriches the
// rows below the confidence threshold with EOL data. Rows are processed
// sequentially in input order and every collection preserves that order.
// Row-level failures are absorbed into the report; the run never aborts.
func (p *Pipeline) Run(ctx context.Context, runID string, reference []string, rows []InputRow) *RunReport {
	report := &RunReport{
		RunID:     runID,
		StartedAt: p.now().Format(timestampLayout),
		Matches:   make([]MatchRow, 0, len(rows)),
		Successes: []SuccessRow{},
		NotFound:  []NotFoundRow{},
		Errors:    []ErrorRow{},
	}

	log.Printf("Run %s: processing %d datastores against %d reference entries", runID, len(rows), len(reference))

	for i, row := range rows {
		log.Printf("[%d/%d] %s", i+1, len(rows), row.Name)

		result := p.matcher.Match(ctx, row.Name, reference)
		needsLookup := result.Confidence < p.threshold

		report.Matches = append(report.Matches, MatchRow{
			RowID:             row.ID,
			InputDatastore:    result.InputName,
			MatchedDatastore:  result.MatchedReference,
			Confidence:        result.Confidence,
			Reasoning:         result.Reasoning,
			RequiresEOLLookup: needsLookup,
			Timestamp:         p.now().Format(timestampLayout),
		})

		if !needsLookup {
			continue
		}

		query := extractProductVersion(row.Name)
		if p.verbose {
			log.Printf("Extracted product %q version %q from %q", query.Product, query.Version, row.Name)
		}
		p.bucket(report, row.Name, p.eol.Lookup(ctx, query.Product, query.Version))
	}

	report.Summary = summarize(report)
	log.Printf("Run %s complete: %d matched, %d enriched", runID, report.Summary.Total, report.Summary.Enriched)
	return report
}

// bucket appends the outcome to the collection its status selects.
func (p *Pipeline) bucket(report *RunReport, inputName string, outcome EolOutcome) {
	switch outcome.Status {
	case StatusSuccess:
		report.Successes = append(report.Successes, SuccessRow{
			InputDatastore: inputName,
			Product:        outcome.Product,
			Version:        outcome.Version,
			APIProductName: outcome.APIProductName,
			MatchedVersion: outcome.MatchedVersion,
			MatchType:      outcome.MatchType,
			EolDate:        outcome.EolDate,
			SupportStatus:  outcome.SupportStatus,
			LatestVersion:  outcome.LatestVersion,
			LTSVersion:     outcome.LTSVersion,
			ReleaseDate:    outcome.ReleaseDate,
		})
	case StatusNotFound:
		report.NotFound = append(report.NotFound, NotFoundRow{
			InputDatastore:    inputName,
			Product:           outcome.Product,
			Version:           outcome.Version,
			APIProductName:    outcome.APIProductName,
			NotFoundType:      outcome.ErrorType,
			AvailableVersions: outcome.AvailableVersions,
			ErrorMessage:      outcome.ErrorMessage,
		})
	default:
		report.Errors = append(report.Errors, ErrorRow{
			InputDatastore: inputName,
			Product:        outcome.Product,
			Version:        outcome.Version,
			APIProductName: outcome.APIProductName,
			ErrorType:      outcome.ErrorType,
			ErrorDetails:   outcome.ErrorMessage,
			RetryCount:     outcome.RetryCount,
			Timestamp:      outcome.Timestamp,
		})
	}
}

func summarize(report *RunReport) Summary {
	s := Summary{Total: len(report.Matches)}
	for _, m := range report.Matches {
		switch {
		case m.Confidence >= 0.8:
			s.HighConfidence++
		case m.Confidence >= 0.6:
			s.MediumConfidence++
		default:
			s.LowConfidence++
		}
	}
	s.Enriched = len(report.Successes) + len(report.NotFound) + len(report.Errors)
	return s
}
