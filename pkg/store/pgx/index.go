package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

// SaveIndex stores a built summary index under the catalog id, replacing any
// previous build.
func (s *CatalogDBStorage) SaveIndex(ctx context.Context, catalogID string, index *common.SummaryIndex) error {
	if catalogID == "" {
		return fmt.Errorf("catalog id is empty")
	}
	if index == nil {
		return fmt.Errorf("index is nil")
	}

	payload, err := json.Marshal(index)
	if err != nil {
		return err
	}

	logger.Debug("[Store][SaveIndex] Upserting catalog", "catalog_id", catalogID, "modules", len(index.Modules))

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO catalogs (public_id, payload, built_at)
		VALUES ($1, $2, now())
		ON CONFLICT (public_id) DO UPDATE SET payload = EXCLUDED.payload, built_at = now()`,
		catalogID, payload,
	)
	return err
}

func (s *CatalogDBStorage) GetIndex(ctx context.Context, catalogID string) (*common.SummaryIndex, error) {
	var payload []byte
	err := s.conn.QueryRow(ctx, `
		SELECT payload
		FROM catalogs
		WHERE public_id = $1`,
		catalogID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, fmt.Errorf("catalog %q: %w", catalogID, store.ErrNotFound)
		}
		return nil, err
	}

	var index common.SummaryIndex
	if err := json.Unmarshal(payload, &index); err != nil {
		return nil, err
	}
	return &index, nil
}

func (s *CatalogDBStorage) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT public_id
		FROM catalogs
		ORDER BY public_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *CatalogDBStorage) DeleteIndex(ctx context.Context, catalogID string) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	_, err := s.conn.Exec(ctx, `
		DELETE FROM catalogs
		WHERE public_id = $1`,
		catalogID,
	)
	return err
}
