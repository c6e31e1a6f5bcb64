package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"discussion-agent/internal/capability"
	"discussion-agent/internal/config"
	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/conversation"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/history"
	"discussion-agent/internal/llm"
	"discussion-agent/internal/logging"
	"discussion-agent/internal/metrics"
	"discussion-agent/internal/prompt"
	"discussion-agent/internal/server"
)

// Build constructs the whole service from cfg. Resources that need teardown are registered
// on the returned App.
func Build(ctx context.Context, cfg config.Config, logger logging.Logger) (*App, *conversation.Orchestrator, error) {
	var closers []Closer
	fail := func(err error) (*App, *conversation.Orchestrator, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, nil, err
	}

	roster, err := discussion.LoadRoster(cfg.AgentsFile)
	if err != nil {
		return fail(err)
	}

	store, storeClosers, err := NewHistoryStore(ctx, cfg.History)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, storeClosers...)

	provider, err := NewProvider(cfg.LLM)
	if err != nil {
		return fail(err)
	}

	builder, err := prompt.NewDiscussionBuilder(prompt.DiscussionBuilderConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fail(err)
	}

	registry, err := capability.NewRegistry(capability.Builtins()...)
	if err != nil {
		return fail(err)
	}

	counter := NewTokenCounter(cfg.Context)
	warmTokenCounter(counter, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orch, err := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		MaxRepliesPerTurn: cfg.Conversation.MaxRepliesPerTurn,
		MaxActionRounds:   cfg.Conversation.MaxActionRounds,
	}, conversation.Dependencies{
		Roster:       roster,
		Store:        store,
		Builder:      builder,
		Window:       NewWindowManager(cfg.Context, counter),
		Provider:     provider,
		Capabilities: registry,
		Metrics:      metrics.New(reg),
		Logger:       logger,
	})
	if err != nil {
		return fail(err)
	}

	router := server.NewRouter(orch, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       reg,
		Logger:         logger,
	})

	application, err := New(cfg.Server.Addr, router, logger)
	if err != nil {
		return fail(err)
	}
	application.SetShutdownTimeout(cfg.Server.ShutdownTimeout)
	application.closers = closers
	application.AddCloser("logger", func() error {
		// stdout cannot be synced on some platforms; the error is not actionable
		_ = logging.Sync(logger)
		return nil
	})

	logger.With(
		logging.F("agents", len(roster.Agents())),
		logging.F("history_backend", cfg.History.Backend),
		logging.F("llm_provider", cfg.LLM.Provider),
	).Info("service assembled")
	return application, orch, nil
}

// NewHistoryStore opens the configured backend, optionally behind an LRU cache.
func NewHistoryStore(ctx context.Context, cfg config.HistoryConfig) (history.Store, []Closer, error) {
	var (
		store   history.Store
		closers []Closer
	)
	switch cfg.Backend {
	case "sqlite":
		s, err := history.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closers = append(closers, Closer{Name: "sqlite history", Close: s.Close})
	case "file", "":
		s, err := history.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		store = s
	default:
		return nil, nil, fmt.Errorf("app: unknown history backend %q", cfg.Backend)
	}

	if cfg.CacheSize > 0 {
		cached, err := history.NewCachedStore(store, cfg.CacheSize)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, err
		}
		store = cached
	}
	return store, closers, nil
}

// NewProvider returns the configured streaming model client.
func NewProvider(cfg config.LLMConfig) (llm.StreamingProvider, error) {
	switch cfg.Provider {
	case "echo":
		return llm.NewEchoProvider(""), nil
	case "openai", "":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("app: unknown llm provider %q", cfg.Provider)
	}
}

// NewTokenCounter returns the counter selected by cfg.TokenCounter, tiktoken by default.
func NewTokenCounter(cfg config.ContextConfig) contextmgr.TokenCounter {
	if cfg.TokenCounter == "heuristic" {
		return contextmgr.HeuristicCounter{}
	}
	return contextmgr.DefaultTokenCounter()
}

// NewWindowManager applies the configured budget and the given token counter.
func NewWindowManager(cfg config.ContextConfig, counter contextmgr.TokenCounter) *contextmgr.WindowManager {
	return contextmgr.NewWindowManager(contextmgr.WithCharBudget(cfg.CharBudget), contextmgr.WithTokenCounter(counter))
}

// warmTokenCounter forces the counter to load its encoding now, so the first turn does not
// pay for the BPE download.
func warmTokenCounter(counter contextmgr.TokenCounter, logger logging.Logger) {
	start := time.Now()
	counter.CountMessages(nil)
	logger.With(logging.F("elapsed", time.Since(start))).Debug("token counter ready")
}
