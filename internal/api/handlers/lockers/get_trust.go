package lockers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/util"
)

func GetTrustRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/lockers/:pubkey/trust", getTrustHandler(s))
}

func getTrustHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		pubkey := c.Param("pubkey")
		if pubkey == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "pubkey is required")
		}

		score, err := s.Marketplace.TrustScore(ctx, pubkey)
		if err != nil {
			log.Error().Err(err).Str("pubkey", pubkey).Msg("Failed to compute trust score")
			return echo.NewHTTPError(http.StatusBadGateway, "failed to compute trust score")
		}

		return c.JSON(http.StatusOK, score)
	}
}
