package rentals

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/marketplace"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nwc"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/util"
)

type postRentalPayload struct {
	LockerDTag string `json:"locker_d_tag"`
}

func PostRentalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/rentals", postRentalHandler(s))
}

// postRentalHandler creates the invoice for a locker and starts watching
// it in the background; the session is returned immediately so the caller
// can poll its status.
func postRentalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body postRentalPayload
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		if body.LockerDTag == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "locker_d_tag is required")
		}

		listings, err := s.Marketplace.Listings(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to fetch locker listings")
			return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch locker listings")
		}

		var listing *marketplace.LockerListing
		for _, l := range listings {
			if l.DTag == body.LockerDTag {
				listing = l
				break
			}
		}
		if listing == nil {
			return echo.NewHTTPError(http.StatusNotFound, "locker not found")
		}

		session, err := s.Rentals.Start(ctx, listing)
		if err != nil {
			if errors.Is(err, nwc.ErrWalletUnavailable) {
				return echo.NewHTTPError(http.StatusConflict, "no active wallet connection, connect a wallet first")
			}
			log.Error().Err(err).Str("locker", body.LockerDTag).Msg("Failed to start rental")
			return echo.NewHTTPError(http.StatusBadGateway, "failed to start rental")
		}

		// The watch session outlives the request; it terminates on its own
		// attempt cap.
		watchCtx := util.WithLogger(context.WithoutCancel(ctx), *log)
		go func() {
			if _, err := s.Rentals.Watch(watchCtx, session); err != nil {
				log.Error().Err(err).Str("rental_id", session.RentalID).Msg("Rental watch failed")
			}
		}()

		return c.JSON(http.StatusAccepted, session)
	}
}
