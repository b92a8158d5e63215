// Package config loads and validates the service's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// Config holds all configuration for the assistant service.
type Config struct {
	LLM               LLMConfig               `json:"llm"`
	Embedding         EmbeddingConfig         `json:"embedding"`
	Database          DatabaseConfig          `json:"database"`
	Redis             RedisConfig             `json:"redis"`
	VectorStore       VectorStoreConfig       `json:"vector_store"`
	Session           SessionConfig           `json:"session"`
	MoE               MoEConfig               `json:"moe"`
	RAGFallback       RAGFallbackConfig       `json:"rag_fallback"`
	RAGConfidence     RAGConfidenceConfig     `json:"rag_confidence"`
	SlotFilling       SlotFillingConfig       `json:"slot_filling"`
	TaskOrchestrator  TaskOrchestratorConfig  `json:"task_orchestrator"`
	ProgressTracker   ProgressTrackerConfig   `json:"progress_tracker"`
}

// LLMConfig holds LLM API configuration (OpenAI-compatible endpoint).
type LLMConfig struct {
	URL         string  `json:"url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	MaxRetries  int     `json:"max_retries"`
	TimeoutSeconds int  `json:"timeout_seconds"`
}

// EmbeddingConfig holds embedding API configuration.
type EmbeddingConfig struct {
	URL        string `json:"url"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// DatabaseConfig holds the Postgres connection used for the intent and
// tool action catalogues.
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url"`
}

// RedisConfig holds the session store's KV backing configuration.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VectorStoreConfig selects and configures the C4 vector store variant.
type VectorStoreConfig struct {
	Variant   string `json:"variant"` // "in_memory", "remote" (Qdrant), or "postgres" (pgvector)
	QdrantURL string `json:"qdrant_url"`
	Collection string `json:"collection"`
}

// SessionConfig controls C1 session-store behavior.
type SessionConfig struct {
	TTLSeconds           int `json:"ttl_seconds"`
	CacheSize            int `json:"cache_size"`
	CacheStalenessSeconds int `json:"cache_staleness_seconds"`
	CompressThresholdBytes int `json:"compress_threshold_bytes"`
	MaxContextVersions   int `json:"max_context_versions"`
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds"`
}

// MoEConfig controls C8's voting and debate behavior.
type MoEConfig struct {
	Enabled                             bool    `json:"enabled"`
	ParallelVoting                      bool    `json:"parallel_voting"`
	TimeoutPerVoteSeconds                int     `json:"timeout_per_vote_seconds"`
	ConsensusThreshold                   float64 `json:"consensus_threshold"`
	MaxDebateRounds                      int     `json:"max_debate_rounds"`
	DebateConsensusImprovementThreshold  float64 `json:"debate_consensus_improvement_threshold"`
	ParticipantCount                     int     `json:"participant_count"`
}

// RAGFallbackConfig controls C9's graduated fallback behavior.
type RAGFallbackConfig struct {
	EnableGradualDegradation     bool    `json:"enable_gradual_degradation"`
	SimilarityReductionFactor    float64 `json:"similarity_reduction_factor"`
	MinConfidenceForDegradation  float64 `json:"min_confidence_for_degradation"`
	LevelEnabled                 [5]bool `json:"level_enabled"`
}

// RAGConfidenceConfig carries the ten confidence weights and thresholds
// used by C7. Weights must sum to 1.0; Validate enforces this.
type RAGConfidenceConfig struct {
	Weights              models.ConfidenceWeights `json:"weights"`
	AcceptThreshold       float64                 `json:"accept_threshold"`
	MinExamples           int                     `json:"min_examples"`
	MaxLatencyMillis       int                    `json:"max_latency_millis"`
	SimilarityFloor        float64                `json:"similarity_floor"`
}

// SlotFillingConfig controls C11.
type SlotFillingConfig struct {
	EnableDynamicQuestions bool    `json:"enable_dynamic_questions"`
	MaxAttempts            int     `json:"max_attempts"`
	ConfidenceThreshold    float64 `json:"confidence_threshold"`
}

// TaskOrchestratorConfig controls C15.
type TaskOrchestratorConfig struct {
	EnableParallelExecution bool `json:"enable_parallel_execution"`
	MaxParallelTasks        int  `json:"max_parallel_tasks"`
	EnableErrorRecovery     bool `json:"enable_error_recovery"`
	EnableRollbackOnFailure bool `json:"enable_rollback_on_failure"`
	TaskTimeoutSeconds      int  `json:"task_timeout_seconds"`
	MaxRetries              int  `json:"max_retries"`
	RetryDelayMillis        int  `json:"retry_delay_ms"`
}

// ProgressTrackerConfig controls C16.
type ProgressTrackerConfig struct {
	EnableRealTimeTracking     bool `json:"enable_real_time_tracking"`
	UpdateIntervalMillis       int  `json:"update_interval_ms"`
	MaxTrackingDurationMinutes int  `json:"max_tracking_duration_minutes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			URL:            "http://localhost:8000/v1",
			Model:          "Qwen/Qwen3-8B-AWQ",
			MaxTokens:      1024,
			Temperature:    0.3,
			MaxRetries:     3,
			TimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			URL:        "http://localhost:11434/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Database: DatabaseConfig{},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		VectorStore: VectorStoreConfig{
			Variant:    "in_memory",
			Collection: "intent_examples",
		},
		Session: SessionConfig{
			TTLSeconds:             1800,
			CacheSize:              2048,
			CacheStalenessSeconds:  1800,
			CompressThresholdBytes: 4096,
			MaxContextVersions:     5,
			CleanupIntervalSeconds: 300,
		},
		MoE: MoEConfig{
			Enabled:                             true,
			ParallelVoting:                       true,
			TimeoutPerVoteSeconds:                10,
			ConsensusThreshold:                   0.5,
			MaxDebateRounds:                       2,
			DebateConsensusImprovementThreshold:  0.05,
			ParticipantCount:                      3,
		},
		RAGFallback: RAGFallbackConfig{
			EnableGradualDegradation:    true,
			SimilarityReductionFactor:   0.5,
			MinConfidenceForDegradation: 0.3,
			LevelEnabled:                [5]bool{true, true, true, true, true},
		},
		RAGConfidence: RAGConfidenceConfig{
			Weights:          models.DefaultConfidenceWeights(),
			AcceptThreshold:  0.6,
			MinExamples:      2,
			MaxLatencyMillis: 3000,
			SimilarityFloor:  0.5,
		},
		SlotFilling: SlotFillingConfig{
			EnableDynamicQuestions: true,
			MaxAttempts:            3,
			ConfidenceThreshold:    0.5,
		},
		TaskOrchestrator: TaskOrchestratorConfig{
			EnableParallelExecution: true,
			MaxParallelTasks:        4,
			EnableErrorRecovery:     true,
			EnableRollbackOnFailure: true,
			TaskTimeoutSeconds:      15,
			MaxRetries:              2,
			RetryDelayMillis:        250,
		},
		ProgressTracker: ProgressTrackerConfig{
			EnableRealTimeTracking:     true,
			UpdateIntervalMillis:       500,
			MaxTrackingDurationMinutes: 30,
		},
	}
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// getConfigPath resolves the JSON config file path.
func getConfigPath() string {
	if path := os.Getenv("ASSISTANT_CONFIG"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	configPath := filepath.Join(homeDir, ".config", "assistant", "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}
	return filepath.Join(homeDir, ".assistant", "config.json")
}

// Load loads configuration from a JSON file (if present) overlaid with
// environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(getConfigPath()); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to parse config file: %v\n", err)
		}
	}

	envString("ASSISTANT_LLM_URL", &cfg.LLM.URL)
	envString("ASSISTANT_LLM_API_KEY", &cfg.LLM.APIKey)
	envString("ASSISTANT_LLM_MODEL", &cfg.LLM.Model)
	envInt("ASSISTANT_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	envFloat("ASSISTANT_LLM_TEMPERATURE", &cfg.LLM.Temperature)

	envString("ASSISTANT_EMBEDDING_URL", &cfg.Embedding.URL)
	envString("ASSISTANT_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	envString("ASSISTANT_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envInt("ASSISTANT_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)

	envString("ASSISTANT_POSTGRES_URL", &cfg.Database.PostgresURL)
	envString("ASSISTANT_REDIS_ADDR", &cfg.Redis.Addr)
	envString("ASSISTANT_REDIS_PASSWORD", &cfg.Redis.Password)

	envBool("ASSISTANT_MOE_ENABLED", &cfg.MoE.Enabled)
	envBool("ASSISTANT_MOE_PARALLEL_VOTING", &cfg.MoE.ParallelVoting)
	envInt("ASSISTANT_MOE_MAX_DEBATE_ROUNDS", &cfg.MoE.MaxDebateRounds)

	envBool("ASSISTANT_TASK_PARALLEL", &cfg.TaskOrchestrator.EnableParallelExecution)
	envInt("ASSISTANT_TASK_MAX_PARALLEL", &cfg.TaskOrchestrator.MaxParallelTasks)
	envBool("ASSISTANT_TASK_ROLLBACK", &cfg.TaskOrchestrator.EnableRollbackOnFailure)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	var errs []string

	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}

	if c.Embedding.URL != "" && !isValidURL(c.Embedding.URL) {
		errs = append(errs, "embedding URL must be a valid URL")
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, "embedding dimensions must be positive")
	}

	switch c.VectorStore.Variant {
	case "in_memory", "remote", "postgres":
	default:
		errs = append(errs, "vector_store.variant must be 'in_memory', 'remote', or 'postgres'")
	}

	if c.TaskOrchestrator.MaxParallelTasks < 1 {
		errs = append(errs, "task_orchestrator.max_parallel_tasks must be at least 1")
	}
	if c.TaskOrchestrator.MaxRetries < 0 {
		errs = append(errs, "task_orchestrator.max_retries must not be negative")
	}

	if sum := weightSum(c.RAGConfidence.Weights); sum < 0.99 || sum > 1.01 {
		errs = append(errs, fmt.Sprintf("rag_confidence.weights must sum to 1.0, got %.4f", sum))
	}

	if c.SlotFilling.MaxAttempts < 1 {
		errs = append(errs, "slot_filling.max_attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func weightSum(w models.ConfidenceWeights) float64 {
	return w.LLMSelfConfidence + w.MeanRetrievalSimilarity + w.IntentConsistency +
		w.RetrievalCountScaled + w.SemanticDiversity + w.TemporalConfidence +
		w.EmbeddingQuality + w.SimilarityEntropy + w.ContextualBonus + w.PromptRobustness
}
