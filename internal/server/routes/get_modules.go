package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/clarifier/internal/server/middleware"
	"github.com/OFFIS-RIT/clarifier/pkg/common"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"
	"github.com/OFFIS-RIT/clarifier/pkg/query"
	"github.com/OFFIS-RIT/clarifier/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

func GetModulesHandler(c echo.Context) error {
	type getModulesParams struct {
		CatalogID string `param:"id" validate:"required"`
		Name      string `query:"name" validate:"omitempty"`
	}

	params := new(getModulesParams)
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

	q := query.NewCatalogQuery(index, app.Table)

	if params.Name != "" {
		m, ok := q.ResolveName(params.Name)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Module not found"})
		}
		return c.JSON(http.StatusOK, map[string]any{"modules": []*common.Module{m}})
	}

	modules := make([]*common.Module, 0, len(index.Graph.ModuleIDs))
	for _, id := range index.Graph.ModuleIDs {
		if m, ok := index.Modules[id]; ok {
			modules = append(modules, m)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"modules": modules})
}

func GetModuleHandler(c echo.Context) error {
	type getModuleParams struct {
		CatalogID string `param:"id" validate:"required"`
		ModuleID  string `param:"module_id" validate:"required"`
	}

	type moduleResponse struct {
		Module   *common.Module `json:"module"`
		Outgoing []common.Edge  `json:"outgoing"`
		Incoming []common.Edge  `json:"incoming"`
	}

	params := new(getModuleParams)
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

	q := query.NewCatalogQuery(index, app.Table)
	m, ok := q.ModuleByID(params.ModuleID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Module not found"})
	}

	return c.JSON(http.StatusOK, moduleResponse{
		Module:   m,
		Outgoing: q.Dependencies(m.ID, true),
		Incoming: q.Dependencies(m.ID, false),
	})
}
