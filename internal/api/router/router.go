package router

import (
	"github.com/kashguard/go-mpc-oracle/internal/api"
	"github.com/kashguard/go-mpc-oracle/internal/api/handlers"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

// Init 创建运维 HTTP 服务并挂载全部路由
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())

	s.Router = &api.Router{
		Routes:     nil,
		Root:       s.Echo.Group(""),
		Management: s.Echo.Group("/-"),
	}

	s.Router.Routes = handlers.AttachAllRoutes(s)

	for _, r := range s.Router.Routes {
		log.Debug().Str("method", r.Method).Str("path", r.Path).Msg("Route attached")
	}
}
