package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// InitRouter attaches the echo instance and route groups to the server.
// Handler packages register their routes against the returned server.
func InitRouter(s *Server) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s.Echo = e
	s.Router = &Router{
		Root:  e.Group(""),
		APIV1: e.Group("/api/v1"),
	}
}
