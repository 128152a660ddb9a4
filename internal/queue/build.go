package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/OFFIS-RIT/clarifier/internal/storage"
	"github.com/OFFIS-RIT/clarifier/internal/util"
	"github.com/OFFIS-RIT/clarifier/pkg/ai"
	"github.com/OFFIS-RIT/clarifier/pkg/catalog"
	"github.com/OFFIS-RIT/clarifier/pkg/leaselock"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	catalogstore "github.com/OFFIS-RIT/clarifier/pkg/store/pgx"
	"github.com/OFFIS-RIT/clarifier/pkg/writer"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// ProcessBuildMessage runs one catalog build end to end: resolve the source
// documents, take the catalog lease, run the pipeline, write file outputs,
// and publish a completion event. Returning an error sends the message to
// the retry queue.
func ProcessBuildMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	aiClient ai.CatalogAIClient,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(BuildCatalogMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if !ValidCatalogID(data.CatalogID) {
		return fmt.Errorf("invalid catalog id %q", data.CatalogID)
	}

	keys := append([]string{}, data.Keys...)
	if data.Prefix != "" {
		listed, err := storage.ListFilesWithPrefix(ctx, s3Client, data.Prefix)
		if err != nil {
			return fmt.Errorf("failed to list documents under prefix %s: %w", data.Prefix, err)
		}
		keys = append(keys, listed...)
	}
	keys = dedupeKeys(keys)

	chunkMaxTokens := int(util.GetEnvNumeric("CHUNK_MAX_TOKENS", 500))
	docs, skipped := storage.DocumentsFromKeys(s3Client, keys, chunkMaxTokens)
	for _, key := range skipped {
		logger.Warn("[Queue] Skipping unsupported document", "catalog_id", data.CatalogID, "key", key)
	}
	if len(keys) > 0 && len(docs) == 0 {
		return fmt.Errorf("no loadable documents for catalog %s", data.CatalogID)
	}

	catalogClient, err := newCatalogClientFromEnv()
	if err != nil {
		return err
	}
	storeClient, err := catalogstore.NewCatalogDBStorageWithConnection(ctx, conn)
	if err != nil {
		return err
	}

	logger.Debug("[Queue] Acquiring catalog lease", "catalog_id", data.CatalogID)
	lockClient := leaselock.New(conn)
	lease, err := lockClient.Acquire(ctx, leaselock.CatalogKey(data.CatalogID), leaselock.Options{
		TTL:         10 * time.Minute,
		RenewEvery:  4 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("catalog-build/%s/", data.CatalogID),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Queue] Failed to release catalog lease", "catalog_id", data.CatalogID, "err", err)
		}
	}()

	start := time.Now()
	index, err := catalogClient.BuildCatalog(lease.Context, docs, data.CatalogID, aiClient, storeClient)
	if err != nil {
		return err
	}

	if outputDir := util.GetEnv("OUTPUT_DIR"); outputDir != "" {
		w := writer.NewCatalogWriter(filepath.Join(outputDir, data.CatalogID))
		if err := w.Write(index); err != nil {
			logger.Warn("[Queue] Failed to write catalog files", "catalog_id", data.CatalogID, "err", err)
		}
	}

	logger.Info("[Queue] Catalog build finished",
		"catalog_id", data.CatalogID,
		"modules", len(index.Modules),
		"edges", len(index.Graph.Edges),
		"duration_ms", time.Since(start).Milliseconds())

	event, err := json.Marshal(CatalogEventMsg{
		CatalogID: data.CatalogID,
		RunID:     index.Meta.RunID,
		Status:    "completed",
	})
	if err == nil {
		if err := PublishTopic(ch, "catalog.completed", event); err != nil {
			logger.Warn("[Queue] Failed to publish completion event", "catalog_id", data.CatalogID, "err", err)
		}
	}

	return nil
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

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
