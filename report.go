package datastoreMatching

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Report timestamps keep the original tool's spreadsheet format.
const timestampLayout = "2006-01-02 15:04:05"

// Report file names, one per outcome collection.
const (
	matchResultsFile = "datastore_match_results.csv"
	successFile      = "api_success.csv"
	notFoundFile     = "api_not_found.csv"
	errorsFile       = "api_errors.csv"
)

// MatchRow is one line of the match-results report. Every input row lands
// here, whatever its confidence. RowID carries the input file's optional
// identifier into the JSON form; the CSV keeps the original column set.
type MatchRow struct {
	RowID             string  `json:"row_id,omitempty"`
	InputDatastore    string  `json:"input_datastore"`
	MatchedDatastore  string  `json:"matched_datastore"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	RequiresEOLLookup bool    `json:"requires_eol_lookup"`
	Timestamp         string  `json:"timestamp"`
}

// SuccessRow is one line of the api_success report.
type SuccessRow struct {
	InputDatastore string `json:"input_datastore"`
	Product        string `json:"product"`
	Version        string `json:"version"`
	APIProductName string `json:"api_product_name"`
	MatchedVersion string `json:"matched_version"`
	MatchType      string `json:"match_type"`
	EolDate        string `json:"eol_date"`
	SupportStatus  string `json:"support_status"`
	LatestVersion  string `json:"latest_version"`
	LTSVersion     string `json:"lts_version"`
	ReleaseDate    string `json:"release_date"`
}

// NotFoundRow is one line of the api_not_found report.
type NotFoundRow struct {
	InputDatastore    string   `json:"input_datastore"`
	Product           string   `json:"product"`
	Version           string   `json:"version"`
	APIProductName    string   `json:"api_product_name"`
	NotFoundType      string   `json:"not_found_type"`
	AvailableVersions []string `json:"available_versions,omitempty"`
	ErrorMessage      string   `json:"error_message"`
}

// ErrorRow is one line of the api_errors report.
type ErrorRow struct {
	InputDatastore string `json:"input_datastore"`
	Product        string `json:"product"`
	Version        string `json:"version"`
	APIProductName string `json:"api_product_name"`
	ErrorType      string `json:"error_type"`
	ErrorDetails   string `json:"error_details"`
	RetryCount     int    `json:"retry_count"`
	Timestamp      string `json:"timestamp"`
}

// Summary counts the run by confidence band plus the number of rows that
// went through EOL enrichment.
type Summary struct {
	Total            int `json:"total"`
	HighConfidence   int `json:"high_confidence"`
	MediumConfidence int `json:"medium_confidence"`
	LowConfidence    int `json:"low_confidence"`
	Enriched         int `json:"enriched"`
}

// RunReport collects every output row of one pipeline run, all four
// collections in input order.
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt string        `json:"started_at"`
	Matches   []MatchRow    `json:"matches"`
	Successes []SuccessRow  `json:"api_success"`
	NotFound  []NotFoundRow `json:"api_not_found"`
	Errors    []ErrorRow    `json:"api_errors"`
	Summary   Summary       `json:"summary"`
}

// JSON renders the report for the async result sink.
func (r *RunReport) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// WriteFiles writes the four report files into dir, creating it when needed
// and overwriting previous runs. Enrichment files are written even when
// empty so downstream consumers always find the full set.
func (r *RunReport) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating output directory %s: %v", ErrIO, dir, err)
	}
	if err := r.writeMatchResults(filepath.Join(dir, matchResultsFile)); err != nil {
		return err
	}
	if err := r.writeSuccesses(filepath.Join(dir, successFile)); err != nil {
		return err
	}
	if err := r.writeNotFound(filepath.Join(dir, notFoundFile)); err != nil {
		return err
	}
	return r.writeErrors(filepath.Join(dir, errorsFile))
}

func (r *RunReport) writeMatchResults(path string) error {
	records := [][]string{{
		"Input Datastore", "Matched Datastore", "Confidence Score", "Reasoning",
		"Requires EOL Lookup", "Processing Status", "Timestamp",
	}}
	for _, row := range r.Matches {
		lookup := "No"
		if row.RequiresEOLLookup {
			lookup = "Yes"
		}
		records = append(records, []string{
			row.InputDatastore,
			row.MatchedDatastore,
			formatConfidence(row.Confidence),
			row.Reasoning,
			lookup,
			"Completed",
			row.Timestamp,
		})
	}
	return writeCSV(path, records)
}

func (r *RunReport) writeSuccesses(path string) error {
	records := [][]string{{
		"Input Datastore", "Product", "Version", "API Product Name",
		"API Matched Version", "Match Type", "EOL Date", "Support Status",
		"Latest Version", "LTS Version", "Release Date",
	}}
	for _, row := range r.Successes {
		records = append(records, []string{
			row.InputDatastore,
			row.Product,
			row.Version,
			row.APIProductName,
			row.MatchedVersion,
			row.MatchType,
			row.EolDate,
			row.SupportStatus,
			row.LatestVersion,
			row.LTSVersion,
			row.ReleaseDate,
		})
	}
	return writeCSV(path, records)
}

func (r *RunReport) writeNotFound(path string) error {
	records := [][]string{{
		"Input Datastore", "Product", "Version", "API Product Name",
		"Not Found Type", "Available Versions", "Error Message",
	}}
	for _, row := range r.NotFound {
		records = append(records, []string{
			row.InputDatastore,
			row.Product,
			row.Version,
			row.APIProductName,
			row.NotFoundType,
			strings.Join(row.AvailableVersions, ", "),
			row.ErrorMessage,
		})
	}
	return writeCSV(path, records)
}

func (r *RunReport) writeErrors(path string) error {
	records := [][]string{{
		"Input Datastore", "Product", "Version", "API Product Name",
		"Error Type", "Error Details", "Retry Count", "Timestamp",
	}}
	for _, row := range r.Errors {
		records = append(records, []string{
			row.InputDatastore,
			row.Product,
			row.Version,
			row.APIProductName,
			row.ErrorType,
			row.ErrorDetails,
			strconv.Itoa(row.RetryCount),
			row.Timestamp,
		})
	}
	return writeCSV(path, records)
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrIO, path, err)
	}
	if err := csv.NewWriter(f).WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %v", ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, path, err)
	}
	log.Printf("Wrote %d rows to %s", len(records)-1, path)
	return nil
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}
