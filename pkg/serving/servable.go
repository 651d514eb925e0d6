package serving

import (
	"github.com/b0ase/path402/pkg/wallet"
)

// ServableToken is one held token with serving rights and its earnings.
type ServableToken struct {
	Address    string  `json:"dollarAddress"`
	TokenID    string  `json:"tokenId"`
	Position   int64   `json:"position"`
	PricePaid  int64   `json:"pricePaid"`
	ServeCount int     `json:"serveCount"`
	Revenue    int64   `json:"revenueEarned"`
	ROIPercent float64 `json:"roiPercent"`
}

// Servable lists w's tokens that can be served, in acquisition order.
func Servable(w *wallet.Wallet) []ServableToken {
	snap := w.Snapshot()
	out := make([]ServableToken, 0, len(snap.Tokens))
	for _, tok := range snap.Tokens {
		if !tok.ServingRights {
			continue
		}
		stats := w.TokenStats(tok.ID)
		st := ServableToken{
			Address:    tok.Address,
			TokenID:    tok.ID,
			Position:   tok.SupplyAtAcquisition + 1,
			PricePaid:  tok.PricePaid,
			ServeCount: stats.ServeCount,
			Revenue:    stats.TotalRevenue,
			ROIPercent: -100,
		}
		if stats.ServeCount > 0 {
			st.ROIPercent = float64(stats.TotalRevenue-tok.PricePaid) / float64(tok.PricePaid) * 100
		}
		out = append(out, st)
	}
	return out
}
