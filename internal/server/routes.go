package server

import (
	"github.com/OFFIS-RIT/clarifier/internal/server/middleware"
	"github.com/OFFIS-RIT/clarifier/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Catalog routes
	apiRoutes.GET("/catalogs", routes.GetCatalogsHandler, middleware.RequireAnyPermission("catalog.view", "catalog.build"))
	apiRoutes.GET("/catalogs/:id", routes.GetCatalogHandler, middleware.RequirePermission("catalog.view"))
	apiRoutes.DELETE("/catalogs/:id", routes.DeleteCatalogHandler, middleware.RequirePermission("catalog.delete"))

	// Module routes
	apiRoutes.GET("/catalogs/:id/modules", routes.GetModulesHandler, middleware.RequirePermission("catalog.view"))
	apiRoutes.GET("/catalogs/:id/modules/:module_id", routes.GetModuleHandler, middleware.RequirePermission("catalog.view"))

	// Graph routes
	apiRoutes.GET("/catalogs/:id/graph", routes.GetGraphHandler, middleware.RequirePermission("catalog.view"))

	// Run routes
	apiRoutes.POST("/catalogs/:id/runs", routes.CreateRunHandler, middleware.RequirePermission("catalog.build"))
}
