package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/atlasvoice/assistant/internal/adapters/embedding"
	"github.com/atlasvoice/assistant/internal/adapters/kvstore"
	"github.com/atlasvoice/assistant/internal/application"
	"github.com/atlasvoice/assistant/internal/catalogue"
	"github.com/atlasvoice/assistant/internal/classifier"
	"github.com/atlasvoice/assistant/internal/decompose"
	"github.com/atlasvoice/assistant/internal/dependency"
	"github.com/atlasvoice/assistant/internal/domain/models"
	"github.com/atlasvoice/assistant/internal/entity"
	"github.com/atlasvoice/assistant/internal/fallback"
	"github.com/atlasvoice/assistant/internal/intent"
	"github.com/atlasvoice/assistant/internal/llmprovider"
	"github.com/atlasvoice/assistant/internal/moe"
	"github.com/atlasvoice/assistant/internal/orchestrator"
	"github.com/atlasvoice/assistant/internal/ports"
	"github.com/atlasvoice/assistant/internal/progress"
	"github.com/atlasvoice/assistant/internal/session"
	"github.com/atlasvoice/assistant/internal/slotfill"
	"github.com/atlasvoice/assistant/internal/subtaskvalidator"
	"github.com/atlasvoice/assistant/internal/toolregistry"
	"github.com/atlasvoice/assistant/internal/vectorstore"
)

// toolActionsFile mirrors catalogue.YAMLSource's document shape, but for
// tool actions; a Postgres-backed ToolActionSource is left for a server
// deployment, which is out of this CLI's scope.
type toolActionsFile struct {
	Actions []*models.ToolAction `yaml:"actions"`
}

func loadToolActions(path string) ([]*models.ToolAction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read actions file %q: %w", path, err)
	}
	var doc toolActionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse actions file %q: %w", path, err)
	}
	return doc.Actions, nil
}

// wiredComponents holds every component built from cfg, ready to compose
// into the application.ProcessUtterance use case.
type wiredComponents struct {
	Catalogue    ports.IntentRegistry
	Actions      ports.ToolActionRegistry
	Sessions     ports.SessionStore
	IntentEngine *intent.Engine
	App          *application.ProcessUtterance
	close        func()
}

// wireOptions are the CLI's own flags layered over cfg, since a catalogue
// file and a tool-action file have no equivalent in config.Config (that
// struct only carries the Postgres connection a server deployment uses).
type wireOptions struct {
	catalogueSource string // "yaml" or "postgres"
	catalogueFile   string
	actionsFile     string
}

// wireComponents builds the full pipeline from cfg and opts, the CLI
// equivalent of a server's composition root. Callers must invoke the
// returned close function once done.
func wireComponents(ctx context.Context, opts wireOptions) (*wiredComponents, error) {
	closers := make([]func(), 0, 4)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	actions, err := loadToolActions(opts.actionsFile)
	if err != nil {
		closeAll()
		return nil, err
	}

	httpExec := &httpToolExecutor{client: defaultHTTPClient()}
	actionRegistry := toolregistry.New(actions, httpExec)

	var src ports.CatalogueSource
	if opts.catalogueSource == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		src = catalogue.NewPostgresSource(pool)
	} else {
		src = catalogue.NewYAMLSource(opts.catalogueFile)
	}

	cat := catalogue.New(src, actionRegistry, func(format string, args ...any) {
		logger.Warn(fmt.Sprintf(format, args...))
	})
	if _, err := cat.Reload(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions, logger)

	var vectors ports.VectorStore
	switch cfg.VectorStore.Variant {
	case "remote":
		host, port, useTLS := parseQdrantURL(cfg.VectorStore.QdrantURL)
		remote, err := vectorstore.NewRemote(ctx, vectorstore.RemoteConfig{
			Host:       host,
			Port:       port,
			UseTLS:     useTLS,
			Collection: cfg.VectorStore.Collection,
			Dimension:  cfg.Embedding.Dimensions,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connect vector store: %w", err)
		}
		vectors = remote
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connect vector store database: %w", err)
		}
		closers = append(closers, pool.Close)
		vectors = vectorstore.NewPostgres(pool, cfg.Embedding.Dimensions)
	default:
		vectors = vectorstore.NewInMemory(cfg.Embedding.Dimensions)
	}

	primaryLLM := llmprovider.New(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Model)

	clf := classifier.New(embedder, vectors, primaryLLM, classifier.Config{
		Weights:         cfg.RAGConfidence.Weights,
		AcceptThreshold: cfg.RAGConfidence.AcceptThreshold,
		MinExamples:     cfg.RAGConfidence.MinExamples,
		MaxLatency:      time.Duration(cfg.RAGConfidence.MaxLatencyMillis) * time.Millisecond,
		SimilarityFloor: cfg.RAGConfidence.SimilarityFloor,
	})

	var moeEngine *moe.Engine
	if cfg.MoE.Enabled {
		moeEngine = moe.New(moeParticipants(cfg.MoE.ParticipantCount, primaryLLM), primaryLLM, moe.Config{
			Enabled:                             cfg.MoE.Enabled,
			ParallelVoting:                      cfg.MoE.ParallelVoting,
			TimeoutPerVote:                      time.Duration(cfg.MoE.TimeoutPerVoteSeconds) * time.Second,
			ConsensusThreshold:                  cfg.MoE.ConsensusThreshold,
			MaxDebateRounds:                     cfg.MoE.MaxDebateRounds,
			DebateConsensusImprovementThreshold: cfg.MoE.DebateConsensusImprovementThreshold,
			HelpIntent:                          "help",
		})
	}

	fallbackEngine := fallback.New(fallback.Config{
		EnableGradualDegradation:    cfg.RAGFallback.EnableGradualDegradation,
		SimilarityReductionFactor:   cfg.RAGFallback.SimilarityReductionFactor,
		MinConfidenceForDegradation: cfg.RAGFallback.MinConfidenceForDegradation,
		LevelEnabled:                cfg.RAGFallback.LevelEnabled,
		Greetings:                   map[string]string{"hola": "saludo", "buenas": "saludo"},
		Thanks:                      map[string]string{"gracias": "agradecimiento"},
		Goodbyes:                    map[string]string{"adios": "despedida", "hasta luego": "despedida"},
		HelpWords:                   map[string]string{"ayuda": "help", "no entiendo": "help"},
		KeywordMap:                  map[string][]string{},
		HelpIntent:                  "help",
		HelpConfidence:              0.1,
	})

	intentEngine := intent.New(clf, moeEngine, fallbackEngine, cfg.MoE.Enabled)

	recognizer := entity.New(primaryLLM, entity.Config{ConfidenceFloor: cfg.SlotFilling.ConfidenceThreshold})
	validator := entity.NewValidator()
	slotEngine := slotfill.New(primaryLLM, slotfill.Config{MaxAttempts: cfg.SlotFilling.MaxAttempts})
	decomposer := decompose.New(primaryLLM, decompose.Config{MaxSubtasks: 10})
	subtaskValid := subtaskvalidator.New(actionRegistry)
	resolver := dependency.New(dependency.Config{})
	progressMgr := progress.New(progress.Config{})
	orch := orchestrator.New(actionRegistry, progressMgr, orchestrator.Config{
		MaxParallelTasks:        cfg.TaskOrchestrator.MaxParallelTasks,
		DefaultTimeout:          time.Duration(cfg.TaskOrchestrator.TaskTimeoutSeconds) * time.Second,
		RetryBackoffUnit:        time.Duration(cfg.TaskOrchestrator.RetryDelayMillis) * time.Millisecond,
		EnableParallelExecution: cfg.TaskOrchestrator.EnableParallelExecution,
		EnableRollbackOnFailure: cfg.TaskOrchestrator.EnableRollbackOnFailure,
	})

	kv := kvstore.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	closers = append(closers, func() { _ = kv.Close() })

	sessions, err := session.New(kv, session.Config{
		TTL:               time.Duration(cfg.Session.TTLSeconds) * time.Second,
		CacheSize:         cfg.Session.CacheSize,
		CacheStaleness:    time.Duration(cfg.Session.CacheStalenessSeconds) * time.Second,
		CompressThreshold: cfg.Session.CompressThresholdBytes,
		MaxVersions:       cfg.Session.MaxContextVersions,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("build session store: %w", err)
	}

	app := application.NewProcessUtterance(sessions, cat, actionRegistry, intentEngine, recognizer, validator, slotEngine, decomposer, subtaskValid, resolver, orch)

	return &wiredComponents{
		Catalogue:    cat,
		Actions:      actionRegistry,
		Sessions:     sessions,
		IntentEngine: intentEngine,
		App:          app,
		close:        closeAll,
	}, nil
}

// parseQdrantURL splits a "host:port" or "scheme://host:port" address into
// the fields vectorstore.RemoteConfig needs, defaulting to Qdrant's plain
// gRPC port when none is given.
func parseQdrantURL(addr string) (host string, port int, useTLS bool) {
	port = 6334
	if addr == "" {
		return "localhost", port, false
	}
	if u, err := url.Parse(addr); err == nil && u.Host != "" {
		host = u.Hostname()
		if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
			port = p
		}
		return host, port, u.Scheme == "https" || u.Scheme == "grpcs"
	}
	host = addr
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			port = n
		}
	}
	return host, port, false
}

// moeParticipants builds n MoE panel seats around a single configured LLM
// endpoint, cycling through a small set of debate roles; a production
// deployment would instead point each seat at a distinct model.
func moeParticipants(n int, provider ports.LLMProvider) []moe.Participant {
	if n <= 0 {
		n = 1
	}
	roles := []string{"primary", "skeptic", "domain_expert", "devil_advocate"}
	participants := make([]moe.Participant, 0, n)
	for i := 0; i < n; i++ {
		weight := 1.0 - float64(i)*0.1
		if weight < 0.1 {
			weight = 0.1
		}
		participants = append(participants, moe.Participant{
			LLMID:    fmt.Sprintf("seat-%d", i+1),
			Role:     roles[i%len(roles)],
			Weight:   weight,
			Provider: provider,
		})
	}
	return participants
}
