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

// CreateRunHandler enqueues a catalog build. The request names the source
// documents as an S3 prefix, explicit object keys, or both; the worker picks
// the message up and runs the pipeline.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		CatalogID string   `param:"id" validate:"required"`
		Prefix    string   `json:"prefix" validate:"required_without=Keys,omitempty"`
		Keys      []string `json:"keys" validate:"required_without=Prefix,omitempty,dive,required"`
	}

	type createRunResponse struct {
		Message   string `json:"message"`
		CatalogID string `json:"catalog_id,omitempty"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Invalid request body"})
	}
	if !queue.ValidCatalogID(data.CatalogID) {
		return c.JSON(http.StatusBadRequest, createRunResponse{Message: "Invalid catalog id"})
	}

	msg := queue.BuildCatalogMsg{
		Message:   "Build requested via API",
		CatalogID: data.CatalogID,
		Prefix:    data.Prefix,
		Keys:      data.Keys,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to marshal build message", "catalog_id", data.CatalogID, "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{Message: "Internal server error"})
	}

	app := c.(*middleware.AppContext).App
	if err := queue.PublishFIFO(app.Queue, queue.BuildQueue, msgBytes); err != nil {
		logger.Error("Failed to enqueue build", "catalog_id", data.CatalogID, "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{Message: "Internal server error"})
	}

	logger.Info("Catalog build enqueued", "catalog_id", data.CatalogID)
	return c.JSON(http.StatusAccepted, createRunResponse{
		Message:   "Build enqueued",
		CatalogID: data.CatalogID,
	})
}
