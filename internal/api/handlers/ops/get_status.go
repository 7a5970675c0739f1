package ops

import (
	"net/http"

	"github.com/kashguard/go-mpc-oracle/internal/api"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/labstack/echo/v4"
)

// StatusResponse 本节点与 Party 概况
type StatusResponse struct {
	PartyID   string `json:"partyId"`
	Wallet    string `json:"wallet"`
	Threshold int    `json:"threshold"`
	Max       int    `json:"max"`
	Online    int    `json:"online"`
	IsReady   bool   `json:"isReady"`
	KeyID     string `json:"keyId,omitempty"`
	Address   string `json:"address,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
	Pending   int    `json:"pendingKeys"`
}

func GetStatusRoute(s *api.Server) *echo.Route {
	return s.Router.Root.GET("/status", getStatusHandler(s))
}

func getStatusHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := s.Coordinator.Party()
		response := &StatusResponse{
			PartyID:   p.ID(),
			Wallet:    s.Config.Node.Wallet,
			Threshold: p.Threshold(),
			Max:       p.Max(),
			Online:    len(p.OnlinePartners()),
			Pending:   s.KeyCache.Len(),
		}
		if res, ok := s.Coordinator.ProductionKey(); ok {
			response.IsReady = true
			response.KeyID = res.ID
			response.Address = res.Address
			pub := res.PublicKey
			if pubHex, err := tss.PointToHex(&pub); err == nil {
				response.PublicKey = pubHex
			}
		}
		return c.JSON(http.StatusOK, response)
	}
}
