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

// GetGraphHandler returns the dependency graph of a catalog: nodes with
// their names, edges with evidence, cycles, and unresolved mentions. With
// ?module= (and optional ?depth=, default 1) the response is narrowed to
// that module's neighborhood.
func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		CatalogID string `param:"id" validate:"required"`
		Module    string `query:"module" validate:"omitempty"`
		Depth     int    `query:"depth" validate:"omitempty,min=0,max=10"`
	}

	type graphNode struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	type graphResponse struct {
		Nodes   []graphNode         `json:"nodes"`
		Edges   []common.Edge       `json:"edges"`
		Cycles  [][]string          `json:"cycles,omitempty"`
		Orphans []common.OrphanEdge `json:"orphans,omitempty"`
	}

	params := new(getGraphParams)
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

	graph := index.Graph
	if params.Module != "" {
		m, ok := q.ResolveName(params.Module)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Module not found"})
		}
		depth := params.Depth
		if depth == 0 {
			depth = 1
		}
		graph = q.Neighborhood(m.ID, depth)
	}

	nodes := make([]graphNode, 0, len(graph.ModuleIDs))
	for _, id := range graph.ModuleIDs {
		if m, ok := index.Modules[id]; ok {
			nodes = append(nodes, graphNode{ID: m.ID, Name: m.Name})
		}
	}

	return c.JSON(http.StatusOK, graphResponse{
		Nodes:   nodes,
		Edges:   graph.Edges,
		Cycles:  index.Meta.Cycles,
		Orphans: index.Meta.Orphans,
	})
}
