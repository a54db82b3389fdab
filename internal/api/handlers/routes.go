package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api/handlers/lockers"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/api/handlers/rentals"
)

// AttachAllRoutes registers every route on the server's router.
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		lockers.GetLockersRoute(s),
		lockers.GetTrustRoute(s),
		rentals.PostRentalRoute(s),
		rentals.GetRentalRoute(s),
	}
}
