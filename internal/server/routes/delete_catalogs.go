package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/clarifier/internal/queue"
	"github.com/OFFIS-RIT/clarifier/internal/server/middleware"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// DeleteCatalogHandler enqueues a catalog deletion. With purge=true and a
// prefix, the worker also removes the source documents from the bucket.
func DeleteCatalogHandler(c echo.Context) error {
	type deleteCatalogParams struct {
		CatalogID string `param:"id" validate:"required"`
		Prefix    string `query:"prefix" validate:"omitempty"`
		Purge     bool   `query:"purge" validate:"omitempty"`
	}

	type deleteCatalogResponse struct {
		Message   string `json:"message"`
		CatalogID string `json:"catalog_id,omitempty"`
	}

	params := new(deleteCatalogParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteCatalogResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteCatalogResponse{Message: "Invalid request params"})
	}
	if !queue.ValidCatalogID(params.CatalogID) {
		return c.JSON(http.StatusBadRequest, deleteCatalogResponse{Message: "Invalid catalog id"})
	}
	if params.Purge && params.Prefix == "" {
		return c.JSON(http.StatusBadRequest, deleteCatalogResponse{Message: "purge requires a prefix"})
	}

	msg := queue.DeleteCatalogMsg{
		Message:   "Delete requested via API",
		CatalogID: params.CatalogID,
		Prefix:    params.Prefix,
		Purge:     params.Purge,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal delete message", "catalog_id", params.CatalogID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteCatalogResponse{Message: "Internal server error"})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, msgBytes); err != nil {
		logger.Error("Failed to enqueue delete", "catalog_id", params.CatalogID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteCatalogResponse{Message: "Internal server error"})
	}

	logger.Info("Catalog delete enqueued", "catalog_id", params.CatalogID, "purge", params.Purge)
	return c.JSON(http.StatusAccepted, deleteCatalogResponse{
		Message:   "Delete enqueued",
		CatalogID: params.CatalogID,
	})
}
