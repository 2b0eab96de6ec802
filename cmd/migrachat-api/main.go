package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/migrachat/migrachat/internal/answer"
	"github.com/migrachat/migrachat/internal/api"
	"github.com/migrachat/migrachat/internal/chat"
	"github.com/migrachat/migrachat/internal/config"
	"github.com/migrachat/migrachat/internal/llm"
	"github.com/migrachat/migrachat/internal/nlsql"
	"github.com/migrachat/migrachat/internal/observability"
	"github.com/migrachat/migrachat/internal/schema"
)

// datasource guards the live connector so the reconnect endpoint can swap it
// out while requests read the schema context.
type datasource struct {
	mu        sync.Mutex
	connector *schema.Connector
}

func (d *datasource) swap(next *schema.Connector) *schema.Connector {
	d.mu.Lock()
	defer d.mu.Unlock()
	previous := d.connector
	d.connector = next
	return previous
}

func (d *datasource) current() *schema.Connector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connector
}

func main() {
	cfg, err := config.LoadFromEnv("migrachat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	llmClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	synthesizer := answer.NewSynthesizer(llmClient, cfg.AI.MaxTokens)
	orchestrator := chat.NewOrchestrator(nil, synthesizer, logger)
	source := &datasource{}

	connect := func(ctx context.Context) error {
		connector, err := schema.Connect(ctx, schema.Config{
			DSN:             cfg.Database.DSN,
			AllowedTables:   cfg.Database.AllowedTables,
			SampleRows:      cfg.Database.SampleRows,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			orchestrator.SetConnected(false)
			return err
		}
		if previous := source.swap(connector); previous != nil {
			_ = previous.Close()
		}
		orchestrator.SetPipeline(nlsql.NewTranslator(llmClient, connector, connector.Context(), logger))
		orchestrator.SetConnected(true)
		return nil
	}

	if err := connect(context.Background()); err != nil {
		// The server still starts so the reconnect endpoint can
		// recover once the database is reachable.
		logger.Warn("database connection failed at startup", slog.Any("error", err))
	}
	defer func() {
		if connector := source.current(); connector != nil {
			_ = connector.Close()
		}
	}()

	deps := api.Dependencies{
		Logger:  logger,
		Session: orchestrator,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			func(ctx context.Context) error {
				connector := source.current()
				if connector == nil {
					return chat.ErrNotReady
				}
				return connector.Ping(ctx)
			},
		),
		DependencyTimout: time.Second,
		SchemaContext: func() schema.Context {
			connector := source.current()
			if connector == nil {
				return schema.Context{}
			}
			return connector.Context()
		},
		Reconnect:     connect,
		DatabaseLabel: databaseLabel(cfg.Database.DSN),
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// databaseLabel renders a display string for the configured database without
// leaking credentials.
func databaseLabel(dsn string) string {
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/%s", parsed.Addr, parsed.DBName)
}
