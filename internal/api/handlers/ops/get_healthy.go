package ops

import (
	"net/http"

	"github.com/kashguard/go-mpc-oracle/internal/api"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/node"
	"github.com/labstack/echo/v4"
)

// HealthyResponse 成员心跳汇总
type HealthyResponse struct {
	Online  int                 `json:"online"`
	Members []*node.HealthCheck `json:"members"`
}

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

// getHealthyHandler 进程存活即返回 200，附带各成员的心跳状态
func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := s.NodeManager.HealthReport()
		online := 0
		for _, hc := range report {
			if hc.Checks["status"] == "ok" {
				online++
			}
		}
		return c.JSON(http.StatusOK, &HealthyResponse{Online: online, Members: report})
	}
}
