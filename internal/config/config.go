// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/tutorlens/internal/domain"
)

// Splice modes for embedding guidance into the tutoring request.
const (
	SpliceTagged    = "tagged"
	SplicePrincipal = "principal"
	SpliceField     = "field"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string // empty disables the gRPC health service
	DBPath         string
	UpstreamURL    string
	AllowedOrigins []string
	TargetPath     string
	SpliceMode     string
	DebugLogSize   int
	LogLevel       string
	LLM            LLMConfig
	Prompts        PromptTemplates
	Defaults       domain.Settings
	Loader         LoaderConfig
	Messaging      MessagingConfig
}

// LLMConfig describes the external language-model endpoint.
type LLMConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds the guidance call. Zero means no timeout: a hung LLM call
	// holds the intercepted request until the client gives up.
	Timeout time.Duration
}

// PromptTemplates holds the prompt text sent to the LLM endpoint.
type PromptTemplates struct {
	System            string
	UserTemplate      string // %s is replaced with the student's message
	Fallback          string
	Socratic          string
	ErrorPrevention   string
	InteractiveChecks string
}

// LoaderConfig controls bootstrap retries.
type LoaderConfig struct {
	MaxAttempts   int
	RetryInterval time.Duration
}

// MessagingConfig controls cross-context delivery.
type MessagingConfig struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	RatePerSecond float64
}

const (
	defaultLLMEndpoint = "https://api.deepseek.com/chat/completions"
	defaultTargetPath  = "/api/internal/_ai-guide/streaming-chat"
	defaultUpstreamURL = "https://www.khanacademy.org"
	defaultSystem      = "You are the master tutor to help the tutor."
	defaultUser        = "student question: %s\n---Instruction:\n" +
		"Above is a question from a student. I am the tutor, but I need help to be a better tutor in this case. " +
		"Please provide short and concise instructions to me. No need to solve the question, nor will be conversations."
	defaultFallback = "Please provide detailed and considerate tutoring instructions to help me to solve the question."
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	upstream := getEnv("UPSTREAM_URL", defaultUpstreamURL)
	cfg := &Config{
		Port:           port,
		GRPCPort:       getEnv("GRPC_PORT", ""),
		DBPath:         getEnv("DB_PATH", "./data/tutorlens.db"),
		UpstreamURL:    upstream,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", defaultOrigins(upstream, port))),
		TargetPath:     getEnv("TARGET_PATH", defaultTargetPath),
		SpliceMode:     strings.ToLower(getEnv("SPLICE_MODE", SpliceTagged)),
		DebugLogSize:   getEnvInt("DEBUG_LOG_SIZE", 200),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LLM: LLMConfig{
			Endpoint:    getEnv("LLM_ENDPOINT", defaultLLMEndpoint),
			Model:       getEnv("LLM_MODEL", "deepseek-chat"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 0),
		},
		Prompts: PromptTemplates{
			System:            getEnv("SYSTEM_PROMPT", defaultSystem),
			UserTemplate:      defaultUser,
			Fallback:          defaultFallback,
			Socratic:          "Prefer guiding questions over direct answers.",
			ErrorPrevention:   "Common errors to watch for in this type of problem include...",
			InteractiveChecks: "Suggest one short check-for-understanding question.",
		},
		Defaults: domain.Settings{
			Credential: domain.NormalizeCredential(getEnv("DEFAULT_CREDENTIAL", "")),
			Flags: domain.Flags{
				SocraticQuestioning: getEnvBool("DEFAULT_SOCRATIC_QUESTIONING", true),
				ErrorPrevention:     getEnvBool("DEFAULT_ERROR_PREVENTION", false),
				InteractiveChecks:   getEnvBool("DEFAULT_INTERACTIVE_CHECKS", true),
				DebugMode:           getEnvBool("DEFAULT_DEBUG_MODE", false),
			},
		},
		Loader: LoaderConfig{
			MaxAttempts:   getEnvInt("LOADER_MAX_ATTEMPTS", 5),
			RetryInterval: getEnvDuration("LOADER_RETRY_INTERVAL", 3*time.Second),
		},
		Messaging: MessagingConfig{
			MaxAttempts:   getEnvInt("MESSAGING_MAX_ATTEMPTS", 3),
			RetryDelay:    getEnvDuration("MESSAGING_RETRY_DELAY", time.Second),
			RatePerSecond: getEnvFloat("MESSAGING_RATE_PER_SECOND", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.LLM.Endpoint == "" || c.TargetPath == "" {
		return fmt.Errorf("missing required API endpoints")
	}
	if _, err := url.ParseRequestURI(c.LLM.Endpoint); err != nil {
		return fmt.Errorf("LLM_ENDPOINT is not a valid URL: %w", err)
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL must be an absolute URL, got %q", c.UpstreamURL)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("LLM_TIMEOUT cannot be negative")
	}
	if c.Prompts.System == "" || !strings.Contains(c.Prompts.UserTemplate, "%s") {
		return fmt.Errorf("missing required prompt templates")
	}
	switch c.SpliceMode {
	case SpliceTagged, SplicePrincipal, SpliceField:
	default:
		return fmt.Errorf("unknown SPLICE_MODE %q", c.SpliceMode)
	}
	if c.Loader.MaxAttempts <= 0 {
		return fmt.Errorf("LOADER_MAX_ATTEMPTS must be > 0")
	}
	if c.Messaging.MaxAttempts <= 0 {
		return fmt.Errorf("MESSAGING_MAX_ATTEMPTS must be > 0")
	}
	if c.Messaging.RatePerSecond <= 0 {
		return fmt.Errorf("MESSAGING_RATE_PER_SECOND must be > 0")
	}
	if c.DebugLogSize <= 0 {
		return fmt.Errorf("DEBUG_LOG_SIZE must be > 0")
	}
	return nil
}

// Upstream returns the parsed tutoring host URL. Validate guarantees it parses.
func (c *Config) Upstream() *url.URL {
	u, _ := url.Parse(c.UpstreamURL)
	return u
}

// Public returns the configuration payload shared with page-side observers.
// The credential is reduced to a presence flag.
func (c *Config) Public() domain.InjectorConfig {
	return domain.InjectorConfig{
		LLMEndpoint:          c.LLM.Endpoint,
		TargetPath:           c.TargetPath,
		SystemPrompt:         c.Prompts.System,
		SpliceMode:           c.SpliceMode,
		DefaultFlags:         c.Defaults.Flags,
		CredentialConfigured: c.Defaults.HasCredential(),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// defaultOrigins lists the tutoring site's origin and the proxy's own
// loopback origins.
func defaultOrigins(upstream, port string) string {
	origins := []string{"http://localhost:" + port, "http://127.0.0.1:" + port}
	if u, err := url.Parse(upstream); err == nil && u.Scheme != "" && u.Host != "" {
		origins = append([]string{u.Scheme + "://" + u.Host}, origins...)
	}
	return strings.Join(origins, ",")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
