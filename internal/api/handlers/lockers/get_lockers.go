package lockers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/util"
)

func GetLockersRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/lockers", getLockersHandler(s))
}

func getLockersHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		listings, err := s.Marketplace.Listings(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to fetch locker listings")
			return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch locker listings")
		}

		return c.JSON(http.StatusOK, listings)
	}
}
