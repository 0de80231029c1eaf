// Package cfg holds the service configuration and its validation rules.
package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config collects all service-specific settings. Fields are filled from flags
// or from the environment via go-core's cfg.FillFromEnv.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	LLMProvider            string
	OllamaEndpoint         string
	ClaudeAPIKey           string
	PrimaryModel           string
	FallbackModel          string
	PrimaryTimeoutSeconds  int
	FallbackTimeoutSeconds int

	MLEndpoint     string
	MLModel        string
	MLTimeoutMilli int

	RAGEndpoint          string
	RAGCollection        string
	RAGTopK              int
	RAGMinSimilarity     float64
	RAGSeverityThreshold int

	BatchWorkers int
	MaxBatchSize int

	DatabaseURL     string
	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")

	fs.StringVar(&c.LLMProvider, "llm-provider", "ollama", "LLM provider: ollama or claude")
	fs.StringVar(&c.OllamaEndpoint, "ollama-endpoint", "http://localhost:11434", "Ollama base URL")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider")
	fs.StringVar(&c.PrimaryModel, "primary-model", "foundation-sec-8b", "primary analysis model")
	fs.StringVar(&c.FallbackModel, "fallback-model", "llama3.1:8b", "fallback analysis model (empty = no fallback)")
	fs.IntVar(&c.PrimaryTimeoutSeconds, "primary-timeout-seconds", 60, "per-call timeout for the primary model (1..600)")
	fs.IntVar(&c.FallbackTimeoutSeconds, "fallback-timeout-seconds", 30, "per-call timeout for the fallback model (1..600)")

	fs.StringVar(&c.MLEndpoint, "ml-endpoint", "", "ML inference service base URL (empty = ML enrichment disabled)")
	fs.StringVar(&c.MLModel, "ml-model", "", "named model for the ML inference service (empty = service default)")
	fs.IntVar(&c.MLTimeoutMilli, "ml-timeout-ms", 1000, "ML inference call timeout in milliseconds (1..60000)")

	fs.StringVar(&c.RAGEndpoint, "rag-endpoint", "", "RAG retrieval service base URL (empty = RAG enrichment disabled)")
	fs.StringVar(&c.RAGCollection, "rag-collection", "mitre_attack", "RAG knowledge base collection name")
	fs.IntVar(&c.RAGTopK, "rag-top-k", 3, "number of passages to retrieve per query (1..50)")
	fs.Float64Var(&c.RAGMinSimilarity, "rag-min-similarity", 0.5, "minimum similarity score for retrieved passages (0..1)")
	fs.IntVar(&c.RAGSeverityThreshold, "rag-severity-threshold", 8, "minimum alert severity that triggers retrieval (0..15)")

	fs.IntVar(&c.BatchWorkers, "batch-workers", 6, "default worker count for batch analysis (1..64)")
	fs.IntVar(&c.MaxBatchSize, "max-batch-size", 1000, "maximum alerts accepted per batch request (1..10000)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for critical alert notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	switch c.LLMProvider {
	case "ollama":
		if c.OllamaEndpoint == "" {
			errs = append(errs, errors.New("OLLAMA_ENDPOINT is required when LLM_PROVIDER=ollama"))
		}
	case "claude":
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when LLM_PROVIDER=claude"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid LLM_PROVIDER %q (must be ollama or claude)", c.LLMProvider))
	}

	if c.PrimaryModel == "" {
		errs = append(errs, errors.New("PRIMARY_MODEL is required"))
	}
	if c.PrimaryTimeoutSeconds <= 0 || c.PrimaryTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid PRIMARY_TIMEOUT_SECONDS %d (must be 1..600)", c.PrimaryTimeoutSeconds))
	}
	if c.FallbackTimeoutSeconds <= 0 || c.FallbackTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid FALLBACK_TIMEOUT_SECONDS %d (must be 1..600)", c.FallbackTimeoutSeconds))
	}

	if c.MLTimeoutMilli <= 0 || c.MLTimeoutMilli > 60000 {
		errs = append(errs, fmt.Errorf("invalid ML_TIMEOUT_MS %d (must be 1..60000)", c.MLTimeoutMilli))
	}

	if c.RAGEndpoint != "" {
		if c.RAGCollection == "" {
			errs = append(errs, errors.New("RAG_COLLECTION is required when RAG_ENDPOINT is set"))
		}
		if c.RAGTopK <= 0 || c.RAGTopK > 50 {
			errs = append(errs, fmt.Errorf("invalid RAG_TOP_K %d (must be 1..50)", c.RAGTopK))
		}
		if c.RAGMinSimilarity < 0 || c.RAGMinSimilarity > 1 {
			errs = append(errs, fmt.Errorf("invalid RAG_MIN_SIMILARITY %g (must be 0..1)", c.RAGMinSimilarity))
		}
	}
	if c.RAGSeverityThreshold < 0 || c.RAGSeverityThreshold > 15 {
		errs = append(errs, fmt.Errorf("invalid RAG_SEVERITY_THRESHOLD %d (must be 0..15)", c.RAGSeverityThreshold))
	}

	if c.BatchWorkers <= 0 || c.BatchWorkers > 64 {
		errs = append(errs, fmt.Errorf("invalid BATCH_WORKERS %d (must be 1..64)", c.BatchWorkers))
	}
	if c.MaxBatchSize <= 0 || c.MaxBatchSize > 10000 {
		errs = append(errs, fmt.Errorf("invalid MAX_BATCH_SIZE %d (must be 1..10000)", c.MaxBatchSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
