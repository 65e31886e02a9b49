package datastoreMatching

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the pipeline needs. It is read once at
// startup (environment first, CLI flags may override) and passed explicitly
// to the component constructors; nothing reads the environment after that.
type Config struct {
	// LLM provider: "openai" or "anthropic".
	Provider string
	// Model overrides the provider's default model when non-empty.
	Model        string
	OpenAIKey    string
	AnthropicKey string

	// Matches below this confidence are enriched with EOL data.
	ConfidenceThreshold float64

	// Minimum spacing between consecutive outbound calls (LLM and EOL API).
	RateLimitDelay time.Duration

	// Transport retry policy shared by the matcher and the EOL client.
	MaxRetries     int
	RetryBaseDelay time.Duration

	EOLBaseURL  string
	EOLTimeout  time.Duration
	EOLCacheTTL time.Duration

	// Path to the ACAT reference spreadsheet (CSV/TSV).
	ReferenceFile string

	// Redis endpoint used by the async entrypoint and the optional EOL
	// cycle cache. Empty host disables both.
	RedisHost string
	RedisPort string

	Verbose bool
}

const (
	defaultConfidenceThreshold = 0.7
	defaultRateLimitDelay      = 500 * time.Millisecond
	defaultMaxRetries          = 3
	defaultRetryBaseDelay      = 2 * time.Second
	defaultEOLBaseURL          = "https://endoflife.date/api"
	defaultEOLTimeout          = 30 * time.Second
	defaultEOLCacheTTL         = 24 * time.Hour
)

// ConfigFromEnv builds a Config from the process environment. Defaults are
// not applied here; call ApplyDefaults afterwards.
func ConfigFromEnv() Config {
	return Config{
		Provider:            os.Getenv("LLM_PROVIDER"),
		Model:               os.Getenv("LLM_MODEL"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:        os.Getenv("ANTHROPIC_API_KEY"),
		ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", 0),
		RateLimitDelay:      envSeconds("RATE_LIMIT_DELAY"),
		MaxRetries:          envInt("MAX_RETRIES", 0),
		RetryBaseDelay:      envSeconds("RETRY_BASE_DELAY"),
		EOLBaseURL:          os.Getenv("EOL_API_URL"),
		EOLTimeout:          envSeconds("EOL_API_TIMEOUT"),
		EOLCacheTTL:         envSeconds("EOL_CACHE_TTL"),
		ReferenceFile:       os.Getenv("ACAT_REFERENCE_FILE"),
		RedisHost:           os.Getenv("REDIS_HOST"),
		RedisPort:           os.Getenv("REDIS_PORT"),
		Verbose:             envBool("VERBOSE"),
	}
}

// ApplyDefaults fills every zero field with its default value.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Provider) == "" {
		c.Provider = ProviderOpenAI
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if c.RateLimitDelay == 0 {
		c.RateLimitDelay = defaultRateLimitDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.EOLBaseURL == "" {
		c.EOLBaseURL = defaultEOLBaseURL
	}
	c.EOLBaseURL = strings.TrimRight(c.EOLBaseURL, "/")
	if c.EOLTimeout == 0 {
		c.EOLTimeout = defaultEOLTimeout
	}
	if c.EOLCacheTTL == 0 {
		c.EOLCacheTTL = defaultEOLCacheTTL
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
}

// Validate reports the first configuration problem it finds.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderAnthropic:
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
	return nil
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envSeconds reads a duration expressed in (possibly fractional) seconds,
// e.g. RATE_LIMIT_DELAY=0.5. Zero means unset.
func envSeconds(key string) time.Duration {
	secs := envFloat(key, 0)
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func envBool(key string) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return v
}
