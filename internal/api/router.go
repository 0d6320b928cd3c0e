package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/CyberBigfoot/CleanSheet/internal/api/handlers"
	"github.com/CyberBigfoot/CleanSheet/internal/core/orchestrator"
)

type RouterConfig struct {
	Orch *orchestrator.Orchestrator
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE"},
	}))
	e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// Byte streams stay on plain echo routes; huma handles the typed API.
	filesHandler := handlers.NewFilesHandler(cfg.Orch)
	e.POST("/upload", filesHandler.Upload)
	e.GET("/jobs/:id/download", filesHandler.Download)

	v1 := e.Group("/api/v1")
	config := huma.DefaultConfig("CleanSheet API", "1.0.0")
	config.Servers = []*huma.Server{{URL: "/api/v1"}}
	config.Info.Description = "Document sanitization service"

	api := humaecho.NewWithGroup(e, v1, config)

	jobsHandler := handlers.NewJobsHandler(cfg.Orch)
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List all jobs",
		Tags:        []string{"Jobs"},
	}, jobsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get job status and stage history",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Get)

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{id}",
		Summary:     "Cancel a queued or running job",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Cancel)
}
