// Package app wires the application together: configuration, database,
// Genkit provider plugins, and the ingestion/answering service.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskwise/deskwise/internal/config"
	"github.com/deskwise/deskwise/internal/document"
	"github.com/deskwise/deskwise/internal/pipeline"
	"github.com/deskwise/deskwise/internal/store"
)

// App holds the initialized application and its resources.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DBPool   *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Documents *document.Store
	Vectors   *store.Store
	Service   *pipeline.Service

	dbCleanup   func()
	otelCleanup func()
}

// Close releases resources in reverse initialization order. It waits for
// in-flight background ingestion before tearing down the database pool.
func (a *App) Close() error {
	if a.Service != nil {
		a.Service.Close()
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
