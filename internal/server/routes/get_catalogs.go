package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/clarifier/internal/server/middleware"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

func GetCatalogsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	ids, err := app.Store.ListIndexes(ctx)
	if err != nil {
		logger.Error("Failed to list catalogs", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if ids == nil {
		ids = []string{}
	}

	return c.JSON(http.StatusOK, map[string]any{"catalogs": ids})
}

func GetCatalogHandler(c echo.Context) error {
	type getCatalogParams struct {
		CatalogID string `param:"id" validate:"required"`
	}

	type catalogSummary struct {
		CatalogID string           `json:"catalog_id"`
		Meta      common.BuildMeta `json:"meta"`
		Modules   int              `json:"modules"`
		Edges     int              `json:"edges"`
	}

	params := new(getCatalogParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	index, err := app.Store.GetIndex(ctx, params.CatalogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Catalog not found"})
		}
		logger.Error("Failed to load catalog", "catalog_id", params.CatalogID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, catalogSummary{
		CatalogID: params.CatalogID,
		Meta:      index.Meta,
		Modules:   len(index.Modules),
		Edges:     len(index.Graph.Edges),
	})
}
