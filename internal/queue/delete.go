package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OFFIS-RIT/clarifier/internal/storage"
	"github.com/OFFIS-RIT/clarifier/internal/util"
	"github.com/OFFIS-RIT/clarifier/pkg/leaselock"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"
	catalogstore "github.com/OFFIS-RIT/clarifier/pkg/store/pgx"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// ProcessDeleteMessage drops a stored catalog: the persisted index, any
// written file outputs, and, when the message asks for a purge, the source
// documents under its prefix. The catalog lease is held so a delete never
// races a build in flight. Deleting a catalog that does not exist is a
// no-op.
func ProcessDeleteMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	data := new(DeleteCatalogMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}
	if !ValidCatalogID(data.CatalogID) {
		return fmt.Errorf("invalid catalog id %q", data.CatalogID)
	}

	storeClient, err := catalogstore.NewCatalogDBStorageWithConnection(ctx, conn)
	if err != nil {
		return err
	}

	start := time.Now()
	lockClient := leaselock.New(conn)
	lease, err := lockClient.Acquire(ctx, leaselock.CatalogKey(data.CatalogID), leaselock.Options{
		TTL:         10 * time.Minute,
		RenewEvery:  4 * time.Minute,
		Wait:        true,
		TokenPrefix: fmt.Sprintf("catalog-delete/%s/", data.CatalogID),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.Background())
	}()

	if err := storeClient.DeleteIndex(lease.Context, data.CatalogID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete catalog %s: %w", data.CatalogID, err)
		}
		logger.Debug("[Queue] Catalog already absent", "catalog_id", data.CatalogID)
	}

	if outputDir := util.GetEnv("OUTPUT_DIR"); outputDir != "" {
		if err := os.RemoveAll(filepath.Join(outputDir, data.CatalogID)); err != nil {
			logger.Warn("[Queue] Failed to remove catalog output files", "catalog_id", data.CatalogID, "err", err)
		}
	}

	if data.Purge && data.Prefix != "" {
		if err := storage.DeleteFolder(lease.Context, s3Client, data.Prefix); err != nil {
			return fmt.Errorf("failed to purge source documents: %w", err)
		}
	}

	logger.Info("[Queue] Catalog deleted",
		"catalog_id", data.CatalogID, "purged", data.Purge, "duration_sec", time.Since(start).Seconds())
	return nil
}
