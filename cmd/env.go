package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/api"
	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/internal/research"
	"github.com/clarioo/compare-cli/internal/store"
	anthropicpkg "github.com/clarioo/compare-cli/pkg/anthropic"
	"github.com/clarioo/compare-cli/pkg/notion"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

// closeTimeout bounds how long shutdown waits for in-flight calls.
const closeTimeout = 30 * time.Second

// compareEnv holds the store, the orchestrator manager and optional lead
// capture for the run/serve/status/export commands.
type compareEnv struct {
	Store   store.Store
	Manager *compare.Manager
	Leads   api.LeadSink // nil when Notion is not configured
}

// Close pauses every orchestrator, waits briefly for in-flight calls, and
// closes the store.
func (e *compareEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if e.Manager != nil {
		if err := e.Manager.Close(ctx); err != nil {
			zap.L().Warn("close orchestrators", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode and wires the environment. The "store"
// mode skips the research backend; its orchestrators can be read, reset and
// exported but not started.
func initEnv(ctx context.Context, mode string) (*compareEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var backend workflow.Client
	if mode != "store" {
		backend = initBackend()
	}

	env := &compareEnv{
		Store: st,
		Manager: compare.NewManager(st, backend, backend, compare.Config{
			MaxConcurrent:       int64(cfg.Compare.MaxConcurrent),
			FallbackDescription: cfg.Compare.FallbackDescription,
		}),
	}

	if cfg.Notion.Token != "" && cfg.Notion.LeadDB != "" {
		env.Leads = api.NotionLeads{
			Client: notion.NewClient(cfg.Notion.Token, cfg.Notion.LeadDB, notion.WithRateLimit(cfg.Notion.RateLimit)),
		}
		zap.L().Info("notion lead capture enabled")
	} else {
		zap.L().Debug("COMPARE_NOTION_TOKEN or COMPARE_NOTION_LEAD_DB not set, lead capture disabled")
	}

	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "compare.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initBackend picks the remote workflow webhooks or direct Claude research.
func initBackend() workflow.Client {
	if cfg.Research.Backend == "anthropic" {
		zap.L().Info("research backend: anthropic", zap.String("model", cfg.Anthropic.Model))
		return research.New(anthropicpkg.NewClient(cfg.Anthropic.Key), research.Config{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
	}

	zap.L().Info("research backend: webhook",
		zap.String("stage1_url", cfg.Workflow.Stage1URL),
		zap.String("stage2_url", cfg.Workflow.Stage2URL),
	)
	return workflow.NewClient(cfg.Workflow.Stage1URL, cfg.Workflow.Stage2URL,
		workflow.WithTimeout(time.Duration(cfg.Workflow.TimeoutSecs)*time.Second),
		workflow.WithRateLimit(cfg.Workflow.RateLimit),
	)
}
