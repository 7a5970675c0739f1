package handlers

import (
	"github.com/kashguard/go-mpc-oracle/internal/api"
	"github.com/kashguard/go-mpc-oracle/internal/api/handlers/ops"
	"github.com/labstack/echo/v4"
)

func AttachAllRoutes(s *api.Server) []*echo.Route {
	return []*echo.Route{
		ops.GetHealthyRoute(s),
		ops.GetReadyRoute(s),
		ops.GetMetricsRoute(s),
		ops.GetStatusRoute(s),
	}
}
