package datastoreMatching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Outcome statuses for an EOL lookup.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Version match types, strongest to weakest.
const (
	matchExact   = "EXACT"
	matchMajor   = "MAJOR"
	matchClosest = "CLOSEST"
	matchLatest  = "LATEST"
)

// not_found subtypes.
const (
	notFoundUnmappedProduct  = "unmapped_product"
	notFoundProduct          = "product_not_found"
	notFoundNoVersionData    = "no_version_data"
	notFoundNoVersions       = "no_versions_found"
	notFoundVersionNotInList = "version_not_in_list"
)

// error subtypes.
const (
	errorTimeout    = "timeout"
	errorRequest    = "request_error"
	errorHTTP       = "http_error"
	errorMaxRetries = "max_retries"
)

// Wait unit applied when endoflife.date answers 429; scaled by attempt number.
const rateLimitRetryWait = 5 * time.Second

// productSlugs maps ACAT datastore names to endoflife.date product IDs.
// Names absent from this table are reported as unmapped without a network call.
var productSlugs = map[string]string{
	// Databases
	"PostgreSQL":           "postgresql",
	"MySQL":                "mysql",
	"MariaDB":              "mariadb",
	"SQL Server":           "mssql",
	"Microsoft SQL Server": "mssql",
	"Oracle Database":      "oracle-database",
	"Oracle":               "oracle-database",
	"MongoDB":              "mongodb",
	"Redis":                "redis",
	"Elasticsearch":        "elasticsearch",
	"CockroachDB":          "cockroachdb",
	"Couchbase Server":     "couchbase-server",
	"Apache Cassandra":     "cassandra",
	"Cassandra":            "cassandra",
	"Microsoft Access":     "microsoft-access",
	"Access":               "microsoft-access",
	"DB2":                  "ibm-db2",
	"IBM DB2":              "ibm-db2",
	"Informix":             "ibm-informix",
	"Sybase":               "sap-ase",
	"SAP ASE":              "sap-ase",
	"Neo4j":                "neo4j",
	"InfluxDB":             "influxdb",
	"TimescaleDB":          "timescaledb",
	"Amazon RDS":           "amazon-rds",
	"Amazon Aurora":        "amazon-aurora",
	"Google Cloud SQL":     "google-cloud-sql",
	"Azure SQL":            "azure-sql-database",

	// Message queues and streaming
	"Apache Kafka":    "apache-kafka",
	"Kafka":           "apache-kafka",
	"RabbitMQ":        "rabbitmq",
	"ActiveMQ":        "activemq",
	"Apache ActiveMQ": "activemq",
	"Amazon MQ":       "amazon-mq",

	// Search and analytics
	"Splunk":      "splunk",
	"Apache Solr": "solr",
	"Solr":        "solr",
	"Logstash":    "logstash",
	"Kibana":      "kibana",

	// Key-value stores
	"Memcached":        "memcached",
	"Etcd":             "etcd",
	"Consul":           "consul",
	"Apache ZooKeeper": "zookeeper",
	"ZooKeeper":        "zookeeper",

	// Document stores
	"Couchbase":      "couchbase-server",
	"CouchDB":        "couchdb",
	"Apache CouchDB": "couchdb",

	// Graph databases
	"ArangoDB": "arangodb",
	"OrientDB": "orientdb",

	// Time series
	"Prometheus": "prometheus",
	"Grafana":    "grafana",

	// Wide column stores
	"HBase":        "hbase",
	"Apache HBase": "hbase",
	"ScyllaDB":     "scylladb",

	// NewSQL
	"VoltDB": "voltdb",
	"NuoDB":  "nuodb",
}

var productSlugsLower = func() map[string]string {
	m := make(map[string]string, len(productSlugs))
	for name, slug := range productSlugs {
		m[strings.ToLower(name)] = slug
	}
	return m
}()

var productQualifier = regexp.MustCompile(`(?i)\s+(Database|Server|DB)$`)

// resolveProduct maps a product name to its endoflife.date slug. The table is
// tried exactly, then case-insensitively, then once more with a trailing
// Database/Server/DB qualifier stripped.
func resolveProduct(product string) (string, bool) {
	if slug, ok := productSlugs[product]; ok {
		return slug, true
	}
	if slug, ok := productSlugsLower[strings.ToLower(product)]; ok {
		return slug, true
	}
	if cleaned := productQualifier.ReplaceAllString(product, ""); cleaned != product {
		if slug, ok := productSlugs[cleaned]; ok {
			return slug, true
		}
	}
	return "", false
}

var (
	versionXSuffix   = regexp.MustCompile(`[.\-]x$`)
	versionLogSuffix = regexp.MustCompile(`(?i)-log$`)
	versionQualifier = regexp.MustCompile(`(?i)\s+(SP\d+|R\d+|Enterprise|Standard|Express|Developer).*$`)
)

// normalizeVersion reduces a raw version string to the major.minor form the
// endoflife.date cycle list speaks: ".x"/"-x" and "-log" suffixes dropped,
// edition qualifiers such as "SP2" or "Enterprise" dropped, extra version
// components truncated.
func normalizeVersion(version string) string {
	version = versionXSuffix.ReplaceAllString(version, "")
	version = versionLogSuffix.ReplaceAllString(version, "")
	version = versionQualifier.ReplaceAllString(version, "")
	if parts := strings.Split(version, "."); len(parts) > 1 {
		return parts[0] + "." + parts[1]
	}
	return strings.TrimSpace(version)
}

// findClosestCycle picks the release cycle matching a normalized version:
// EXACT on equality, MAJOR on a shared major version, CLOSEST by numeric
// distance (major + minor/100), LATEST (first cycle, the newest) when either
// side does not parse as a number.
func findClosestCycle(target string, available []string) (string, string) {
	if len(available) == 0 {
		return "", ""
	}
	for _, cycle := range available {
		if cycle == target {
			return cycle, matchExact
		}
	}
	major := strings.Split(target, ".")[0]
	for _, cycle := range available {
		if cycle == major || strings.HasPrefix(cycle, major+".") {
			return cycle, matchMajor
		}
	}
	targetValue, ok := cycleValue(target)
	if !ok {
		return available[0], matchLatest
	}
	closest := available[0]
	best := math.Inf(1)
	for _, cycle := range available {
		value, ok := cycleValue(cycle)
		if !ok {
			return available[0], matchLatest
		}
		if diff := math.Abs(value - targetValue); diff < best {
			best = diff
			closest = cycle
		}
	}
	return closest, matchClosest
}

func cycleValue(version string) (float64, bool) {
	parts := strings.Split(version, ".")
	value, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, false
	}
	if len(parts) > 1 {
		minor, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, false
		}
		value += minor / 100
	}
	return value, true
}

// flexString decodes a JSON field that endoflife.date serves as a string,
// number, boolean or null, keeping the literal form. The eol, support and
// lts fields switch between booleans and dates per product.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexString(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("unsupported JSON value %s", data)
}

type cycleEntry struct {
	Cycle       flexString `json:"cycle"`
	ReleaseDate flexString `json:"releaseDate"`
	EOL         flexString `json:"eol"`
	Support     flexString `json:"support"`
	LTS         flexString `json:"lts"`
}

// EolOutcome is the flat result of one EOL lookup. Status selects which of
// the remaining fields are populated.
type EolOutcome struct {
	Status            string   `json:"status"`
	Product           string   `json:"product"`
	Version           string   `json:"version"`
	APIProductName    string   `json:"api_product_name,omitempty"`
	MatchedVersion    string   `json:"matched_version,omitempty"`
	MatchType         string   `json:"match_type,omitempty"`
	EolDate           string   `json:"eol_date,omitempty"`
	SupportStatus     string   `json:"support_status,omitempty"`
	LatestVersion     string   `json:"latest_version,omitempty"`
	LTSVersion        string   `json:"lts_version,omitempty"`
	ReleaseDate       string   `json:"release_date,omitempty"`
	ErrorType         string   `json:"error_type,omitempty"`
	ErrorMessage      string   `json:"error_message,omitempty"`
	AvailableVersions []string `json:"available_versions,omitempty"`
	RetryCount        int      `json:"retry_count,omitempty"`
	Timestamp         string   `json:"timestamp,omitempty"`
}

// EOLClient queries the endoflife.date API for product release cycles.
type EOLClient struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
	retryAfter time.Duration
	limiter    *rate.Limiter
	cache      CycleCache
	verbose    bool
	now        func() time.Time
}

// NewEOLClient builds a client from the config. The limiter is shared with
// the matcher so LLM and EOL calls pace against the same budget; cache may be
// nil to disable cycle-list caching.
func NewEOLClient(cfg Config, limiter *rate.Limiter, cache CycleCache) *EOLClient {
	return &EOLClient{
		httpClient: &http.Client{Timeout: cfg.EOLTimeout},
		baseURL:    strings.TrimRight(cfg.EOLBaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		retryAfter: rateLimitRetryWait,
		limiter:    limiter,
		cache:      cache,
		verbose:    cfg.Verbose,
		now:        time.Now,
	}
}

// Lookup resolves the product to an endoflife.date slug, fetches its release
// cycles and matches the version against them. Failures are reported in the
// outcome, never as an error: every query yields exactly one outcome.
func (c *EOLClient) Lookup(ctx context.Context, product, version string) EolOutcome {
	slug, ok := resolveProduct(product)
	if !ok {
		log.Printf("Product %q has no endoflife.date mapping, skipping lookup", product)
		return EolOutcome{
			Status:       StatusNotFound,
			Product:      product,
			Version:      version,
			ErrorType:    notFoundUnmappedProduct,
			ErrorMessage: fmt.Sprintf("Product '%s' not found in mapping", product),
		}
	}

	normalized := normalizeVersion(version)
	log.Printf("EOL lookup: %s (%s) version %q", product, slug, normalized)

	entries, failure := c.fetchCycles(ctx, slug)
	if failure != nil {
		failure.Product = product
		failure.Version = version
		return *failure
	}

	if len(entries) == 0 {
		return EolOutcome{
			Status:         StatusNotFound,
			Product:        product,
			Version:        version,
			APIProductName: slug,
			ErrorType:      notFoundNoVersionData,
			ErrorMessage:   "No version data available for this product",
		}
	}

	available := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Cycle != "" {
			available = append(available, string(entry.Cycle))
		}
	}
	if len(available) == 0 {
		return EolOutcome{
			Status:         StatusNotFound,
			Product:        product,
			Version:        version,
			APIProductName: slug,
			ErrorType:      notFoundNoVersions,
			ErrorMessage:   "No version cycles found in API response",
		}
	}

	matched, matchType := findClosestCycle(normalized, available)
	if matched == "" {
		return EolOutcome{
			Status:            StatusNotFound,
			Product:           product,
			Version:           version,
			APIProductName:    slug,
			ErrorType:         notFoundVersionNotInList,
			ErrorMessage:      fmt.Sprintf("Version '%s' not found. Available versions: %s", normalized, strings.Join(available, ", ")),
			AvailableVersions: available,
		}
	}

	var info cycleEntry
	for _, entry := range entries {
		if string(entry.Cycle) == matched {
			info = entry
			break
		}
	}

	return EolOutcome{
		Status:         StatusSuccess,
		Product:        product,
		Version:        version,
		APIProductName: slug,
		MatchedVersion: matched,
		MatchType:      matchType,
		EolDate:        orUnknown(string(info.EOL)),
		SupportStatus:  supportStatus(info.Support),
		LatestVersion:  available[0],
		LTSVersion:     ltsCycle(entries),
		ReleaseDate:    orUnknown(string(info.ReleaseDate)),
	}
}

// fetchCycles returns the release cycles for a slug, from cache when
// possible. A non-nil outcome is terminal: a 404 not_found or an error after
// retries are spent.
func (c *EOLClient) fetchCycles(ctx context.Context, slug string) ([]cycleEntry, *EolOutcome) {
	if c.cache != nil {
		if payload, ok := c.cache.Get(ctx, slug); ok {
			var entries []cycleEntry
			if err := json.Unmarshal(payload, &entries); err == nil {
				if c.verbose {
					log.Printf("Cycle cache hit for %s", slug)
				}
				return entries, nil
			}
			log.Printf("Ignoring unreadable cached cycles for %s", slug)
		}
	}

	url := fmt.Sprintf("%s/%s.json", c.baseURL, slug)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.errorOutcome(slug, errorRequest, err.Error(), attempt)
		}

		log.Printf("Calling endoflife.date API: %s (attempt %d/%d)", url, attempt+1, c.maxRetries)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, c.errorOutcome(slug, errorRequest, err.Error(), 0)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries-1 {
				wait := c.baseDelay << attempt
				log.Printf("Request failed: %v. Retrying in %s...", err, wait)
				time.Sleep(wait)
				continue
			}
			if isTimeout(err) {
				return nil, c.errorOutcome(slug, errorTimeout,
					fmt.Sprintf("Connection timeout after %s", c.httpClient.Timeout), c.maxRetries)
			}
			return nil, c.errorOutcome(slug, errorRequest, err.Error(), c.maxRetries)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, c.errorOutcome(slug, errorRequest, fmt.Sprintf("reading response: %v", readErr), 0)
			}
			var entries []cycleEntry
			if err := json.Unmarshal(body, &entries); err != nil {
				return nil, c.errorOutcome(slug, errorRequest, fmt.Sprintf("decoding response: %v", err), 0)
			}
			if c.cache != nil {
				c.cache.Set(ctx, slug, body)
			}
			return entries, nil

		case resp.StatusCode == http.StatusNotFound:
			return nil, &EolOutcome{
				Status:         StatusNotFound,
				APIProductName: slug,
				ErrorType:      notFoundProduct,
				ErrorMessage:   fmt.Sprintf("Product '%s' not found in endoflife.date database", slug),
			}

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := c.retryAfter * time.Duration(attempt+1)
			log.Printf("Rate limited by endoflife.date. Waiting %s before retry...", wait)
			time.Sleep(wait)

		case resp.StatusCode >= http.StatusInternalServerError:
			if attempt < c.maxRetries-1 {
				wait := c.baseDelay << attempt
				log.Printf("HTTP %d from endoflife.date. Retrying in %s...", resp.StatusCode, wait)
				time.Sleep(wait)
				continue
			}
			return nil, c.errorOutcome(slug, errorHTTP,
				fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), c.maxRetries)

		default:
			return nil, c.errorOutcome(slug, errorHTTP,
				fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), 0)
		}
	}

	return nil, c.errorOutcome(slug, errorMaxRetries,
		fmt.Sprintf("Failed after %d attempts", c.maxRetries), c.maxRetries)
}

func (c *EOLClient) errorOutcome(slug, errorType, message string, retries int) *EolOutcome {
	return &EolOutcome{
		Status:         StatusError,
		APIProductName: slug,
		ErrorType:      errorType,
		ErrorMessage:   message,
		RetryCount:     retries,
		Timestamp:      c.now().Format(timestampLayout),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func supportStatus(v flexString) string {
	if v == "false" {
		return "ended"
	}
	return "active"
}

func ltsCycle(entries []cycleEntry) string {
	for _, entry := range entries {
		if entry.LTS != "" && entry.LTS != "false" {
			return string(entry.Cycle)
		}
	}
	return "N/A"
}
