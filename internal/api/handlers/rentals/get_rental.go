package rentals

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/rental"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/util"
)

func GetRentalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/rentals/:id", getRentalHandler(s))
}

func getRentalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		rentalID := c.Param("id")
		session, err := s.Rentals.Get(ctx, rentalID)
		if err != nil {
			if errors.Is(err, rental.ErrSessionNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "rental not found")
			}
			log.Error().Err(err).Str("rental_id", rentalID).Msg("Failed to load rental session")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load rental session")
		}

		return c.JSON(http.StatusOK, session)
	}
}
