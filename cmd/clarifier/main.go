// Command clarifier runs one catalog build locally: it loads the documents
// named on the command line (or found under INPUT_DIR), runs the discovery
// pipeline, and writes the catalog files to OUTPUT_DIR. Without DATABASE_URL
// everything stays in memory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/OFFIS-RIT/clarifier/internal/util"
	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	oai "github.com/OFFIS-RIT/clarifier/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/clarifier/pkg/ai/openai"
	"github.com/OFFIS-RIT/clarifier/pkg/catalog"
	"github.com/OFFIS-RIT/clarifier/pkg/loader"
	"github.com/OFFIS-RIT/clarifier/pkg/loader/csv"
	"github.com/OFFIS-RIT/clarifier/pkg/loader/doc"
	ioloader "github.com/OFFIS-RIT/clarifier/pkg/loader/io"
	"github.com/OFFIS-RIT/clarifier/pkg/loader/web"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/logger/console"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
	"github.com/OFFIS-RIT/clarifier/pkg/store/memory"
	catalogstore "github.com/OFFIS-RIT/clarifier/pkg/store/pgx"
	"github.com/OFFIS-RIT/clarifier/pkg/writer"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	gonanoid "github.com/matoous/go-nanoid/v2"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := os.Args[1:]
	if len(sources) == 0 {
		inputDir := util.GetEnvString("INPUT_DIR", "input")
		found, err := collectInputFiles(inputDir)
		if err != nil {
			logger.Fatal("Failed to read input directory", "dir", inputDir, "err", err)
		}
		sources = found
	}
	if len(sources) == 0 {
		logger.Fatal("No input documents given")
	}

	chunkMaxTokens := int(util.GetEnvNumeric("CHUNK_MAX_TOKENS", 500))
	docs, skipped := documentsFromSources(sources, chunkMaxTokens)
	for _, source := range skipped {
		logger.Warn("Skipping unsupported document", "source", source)
	}
	if len(docs) == 0 {
		logger.Fatal("No loadable documents among the inputs")
	}

	aiClient := newAIClientFromEnv()
	storeClient := newStoreFromEnv(ctx)

	catalogClient, err := newCatalogClientFromEnv()
	if err != nil {
		logger.Fatal("Failed to configure pipeline", "err", err)
	}

	catalogID := util.GetEnv("CATALOG_ID")
	if catalogID == "" {
		catalogID, err = gonanoid.New()
		if err != nil {
			logger.Fatal("Failed to generate catalog id", "err", err)
		}
	}

	index, err := catalogClient.BuildCatalog(ctx, docs, catalogID, aiClient, storeClient)
	if err != nil {
		logger.Fatal("Catalog build failed", "catalog_id", catalogID, "err", err)
	}

	outputDir := util.GetEnvString("OUTPUT_DIR", "output")
	w := writer.NewCatalogWriter(filepath.Join(outputDir, catalogID))
	if err := w.Write(index); err != nil {
		logger.Fatal("Failed to write catalog files", "err", err)
	}

	logger.Info("Catalog written",
		"catalog_id", catalogID,
		"dir", filepath.Join(outputDir, catalogID),
		"modules", len(index.Modules),
		"edges", len(index.Graph.Edges),
		"cycles", len(index.Meta.Cycles),
		"orphans", len(index.Meta.Orphans))
}

func collectInputFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// documentsFromSources pairs each source with its loader: http(s) URLs go
// through the web loader, local files through the extension-matched loader.
func documentsFromSources(sources []string, maxTokens int) ([]loader.Document, []string) {
	ioL := ioloader.NewIODocumentLoader()
	docL := doc.NewDocDocumentLoader(ioL)
	csvL := csv.NewCSVDocumentLoader(ioL)
	webL := web.NewWebDocumentLoader()

	docs := make([]loader.Document, 0, len(sources))
	var skipped []string

	for i, source := range sources {
		id := fmt.Sprintf("doc-%d", i+1)

		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			docs = append(docs, loader.NewTextDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      source,
				MaxTokens: maxTokens,
				Loader:    webL,
			}))
			continue
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(source)), ".")
		switch ext {
		case "csv":
			docs = append(docs, loader.NewCSVDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      source,
				MaxTokens: maxTokens,
				Loader:    csvL,
			}))
		case "docx", "odt":
			docs = append(docs, loader.NewTextDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      source,
				MaxTokens: maxTokens,
				Loader:    docL,
			}))
		case "txt", "md":
			docs = append(docs, loader.NewTextDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      source,
				MaxTokens: maxTokens,
				Loader:    ioL,
			}))
		default:
			skipped = append(skipped, source)
		}
	}

	return docs, skipped
}

func newStoreFromEnv(ctx context.Context) store.CatalogStorage {
	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL == "" {
		logger.Debug("No DATABASE_URL set, using in-memory store")
		return memory.NewCatalogMemStorage()
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}

	migrationsURL := util.GetEnvString("MIGRATIONS_URL", "file://migrations")
	if err := catalogstore.RunMigrations(migrationsURL, databaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	storeClient, err := catalogstore.NewCatalogDBStorageWithConnection(ctx, conn)
	if err != nil {
		logger.Fatal("Failed to create catalog store", "err", err)
	}
	return storeClient
}

func newCatalogClientFromEnv() (*catalog.CatalogClient, error) {
	var table *catalog.NormalizationTable
	if path := util.GetEnv("NORMALIZATION_TABLE"); path != "" {
		t, err := catalog.LoadNormalizationTable(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load normalization table: %w", err)
		}
		table = t
	}

	return catalog.NewCatalogClient(catalog.NewCatalogClientParams{
		TokenEncoder:        util.GetEnvString("TOKEN_ENCODER", "cl100k_base"),
		ModelTag:            util.GetEnvString("AI_EMBED_MODEL", "default"),
		ChunkMaxTokens:      int(util.GetEnvNumeric("CHUNK_MAX_TOKENS", 500)),
		ParallelEmbeddings:  int(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		ParallelAiRequests:  int(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		MaxRetries:          int(util.GetEnvNumeric("AI_MAX_RETRIES", 3)),
		RetrieveTopK:        int(util.GetEnvNumeric("RETRIEVE_TOP_K", 5)),
		RetrieveTokenBudget: int(util.GetEnvNumeric("RETRIEVE_TOKEN_BUDGET", 2000)),
		RefineDepth:         int(util.GetEnvNumeric("REFINE_DEPTH", 0)),
		Table:               table,
	})
}

func newAIClientFromEnv() ai.CatalogAIClient {
	adapter := util.GetEnv("AI_ADAPTER")
	timeoutMin := int(util.GetEnvNumeric("AI_REQUEST_TIMEOUT_MIN", 5))
	parallel := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4))

	var inner ai.CatalogAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewCatalogOllamaClient(oai.NewCatalogOllamaClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			RequestTimeoutMin:     timeoutMin,
			MaxConcurrentRequests: parallel,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		inner = client
	default:
		inner = gai.NewCatalogOpenAIClient(gai.NewCatalogOpenAIClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			RequestTimeoutMin:       timeoutMin,
			MaxConcurrentEmbeddings: parallel,
		})
	}

	cfg := ai.DefaultResilienceConfig()
	cfg.RequestsPerSecond = util.GetEnvNumeric("AI_RATE_LIMIT_RPS", 0)
	return ai.NewResilientClient(inner, cfg)
}
