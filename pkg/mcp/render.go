package mcp

import (
	"fmt"
	"math"
	"strings"

	"github.com/b0ase/path402/pkg/acquisition"
	"github.com/b0ase/path402/pkg/budget"
	"github.com/b0ase/path402/pkg/discovery"
	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/engine"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/serving"
	"github.com/b0ase/path402/pkg/wallet"
)

type lines []string

func (l *lines) add(format string, args ...any) {
	*l = append(*l, fmt.Sprintf(format, args...))
}

func (l *lines) blank() { *l = append(*l, "") }

func (l lines) String() string { return strings.Join(l, "\n") }

func percent(f float64) int { return int(math.Round(f * 100)) }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func renderTerms(t *protocol.Terms, owned bool) string {
	var l lines
	l.add("## %s", t.Address)
	l.blank()
	l.add("**Protocol:** %s v%s", protocol.Name, t.ProtocolVersion)
	l.add("**Current Price:** %d SAT", t.CurrentPrice)
	l.add("**Current Supply:** %d tokens issued", t.CurrentSupply)
	l.add("**Pricing Model:** %s (base: %d SAT)", t.Pricing.Kind, t.Pricing.BasePrice)
	if t.Pricing.Capacity != nil {
		l.add("**Capacity:** %d (%d remaining)", *t.Pricing.Capacity, t.Remaining())
	}
	l.add("**Revenue Model:** %s (issuer: %d%%)", t.Revenue.Model, percent(t.Revenue.IssuerShare))
	if t.PaymentAddress != "" {
		l.add("**Payment Address:** %s", t.PaymentAddress)
	}
	l.add("**Already Owned:** %s", yesNo(owned))
	if t.ContentPreview != nil && *t.ContentPreview != "" {
		l.blank()
		l.add("**Preview:** %s", *t.ContentPreview)
	}
	if len(t.Children) > 0 {
		l.blank()
		l.add("**Nested $addresses:**")
		for _, c := range t.Children {
			l.add("  - %s", c)
		}
	}
	return l.String()
}

func renderDecision(d *budget.Decision) string {
	var l lines
	l.add("## Evaluation: %s", d.Address)
	l.blank()
	l.add("**Recommendation:** %s", strings.ToUpper(string(d.Recommendation)))
	l.add("**Current Price:** %d SAT", d.CurrentPrice)
	l.add("**Budget After Purchase:** %d SAT", d.BudgetRemaining)
	if d.ExpectedROI != nil {
		l.add("**Expected ROI:** %.1f%%", *d.ExpectedROI*100)
	}
	l.blank()
	l.add("%s", d.Reasoning)
	return l.String()
}

func renderAcquisition(r *acquisition.Result) string {
	if r.AlreadyOwned {
		return fmt.Sprintf("Already hold a token for %s. No purchase needed.", r.Address)
	}
	var l lines
	l.add("## Token Acquired: %s", r.Address)
	l.blank()
	l.add("**Token ID:** %s", r.Token.ID)
	l.add("**Price Paid:** %d SAT", r.Token.PricePaid)
	l.add("**Position:** #%d (supply was %d)", r.Token.SupplyAtAcquisition+1, r.Token.SupplyAtAcquisition)
	l.add("**Serving Rights:** %s", yesNo(r.Token.ServingRights))
	l.add("**Wallet Balance:** %d SAT", r.NewBalance)
	if len(r.Content) > 0 {
		l.blank()
		l.add("---")
		l.blank()
		l.add("%s", r.Content)
	}
	return l.String()
}

func renderRedelivery(r *acquisition.Result) string {
	var l lines
	l.add("## Content Redelivered: %s", r.Address)
	l.blank()
	l.add("**Token ID:** %s", r.Token.ID)
	l.add("**Charged:** 0 SAT")
	if r.ContentDigest != "" {
		l.add("**Digest:** %s", r.ContentDigest)
	}
	l.blank()
	l.add("---")
	l.blank()
	l.add("%s", r.Content)
	return l.String()
}

func renderWallet(s wallet.Snapshot) string {
	var l lines
	l.add("## Wallet %s", s.WalletID)
	l.blank()
	l.add("**Balance:** %d SAT", s.Balance)
	l.add("**Tokens Held:** %d", s.TotalTokens)
	l.add("**Total Spent:** %d SAT", s.TotalSpent)
	l.add("**Total Earned:** %d SAT", s.TotalEarned)
	l.add("**Net Position:** %+d SAT", s.NetPosition)
	if len(s.Tokens) > 0 {
		l.blank()
		l.add("| $address | Price Paid | Position |")
		l.add("|---|---|---|")
		for _, t := range s.Tokens {
			l.add("| %s | %d SAT | #%d |", t.Address, t.PricePaid, t.SupplyAtAcquisition+1)
		}
	}
	return l.String()
}

func renderReset(s wallet.Snapshot) string {
	return fmt.Sprintf("Wallet reset. Balance set to %d SAT.", s.Balance)
}

func renderSchedule(s *engine.Schedule) string {
	var l lines
	l.add("## Price Schedule: %s", s.Address)
	l.blank()
	l.add("**Model:** %s (base: %d SAT)", s.Model.Kind, s.Model.BasePrice)
	l.add("**Current:** %d SAT at supply %d", s.CurrentPrice, s.CurrentSupply)
	l.blank()
	l.add("| Supply | Price |")
	l.add("|---|---|")
	for _, p := range s.Points {
		l.add("| %d | %d SAT |", p.Supply, p.Price)
	}
	return l.String()
}

func renderServe(r *serving.Result) string {
	var l lines
	l.add("## Served: %s", r.Event.Address)
	l.blank()
	l.add("**Revenue Earned:** %d SAT", r.Event.Revenue)
	l.add("**Requester:** %s", r.Event.Requester)
	l.add("**Serve Count:** %d", r.Stats.ServeCount)
	l.add("**Token Revenue:** %d SAT", r.Stats.TotalRevenue)
	l.add("**Wallet Balance:** %d SAT", r.NewBalance)
	return l.String()
}

func renderEconomics(r *economics.Report) string {
	var l lines
	l.add("## Economics: %s", r.Address)
	l.blank()
	l.add("**Current Price:** %d SAT (supply %d)", r.CurrentPrice, r.CurrentSupply)
	l.add("**Your Position:** #%d", r.BuyerPosition)
	l.add("**Serving Participation:** %d%%", percent(r.Participation))
	l.blank()
	l.add("### Breakeven")
	if r.Breakeven.Achievable {
		l.add("After %d more buyers (supply %d). Probability: %s.", r.Breakeven.BuyersNeeded, r.Breakeven.Supply, r.Probability)
	} else {
		l.add("Not reached by supply %d.", r.Breakeven.Horizon)
	}
	l.blank()
	l.add("### ROI")
	l.add("| Supply | ROI |")
	l.add("|---|---|")
	l.add("| 2x | %.1f%% |", r.ROIAt2x*100)
	l.add("| 10x | %.1f%% |", r.ROIAt10x*100)
	l.add("| %d | %.1f%% |", r.ProjectedSupply, r.ROIAtProjected*100)
	l.blank()
	l.add("**Projected Revenue:** %d SAT (issuer %d, network %d)", r.Projection.Gross, r.Projection.Issuer, r.Projection.Network)
	l.add("**Your Share:** %d SAT", r.YourShare)
	l.blank()
	l.add("%s", r.Explanation)
	return l.String()
}

func renderBatch(r *discovery.BatchResult) string {
	var l lines
	l.add("## Batch Discovery: %d found, %d failed", len(r.Terms), len(r.Failures))
	if len(r.Terms) > 0 {
		l.blank()
		l.add("| $address | Price | Supply |")
		l.add("|---|---|---|")
		for _, t := range r.Terms {
			l.add("| %s | %d SAT | %d |", t.Address, t.CurrentPrice, t.CurrentSupply)
		}
	}
	if len(r.Failures) > 0 {
		l.blank()
		l.add("**Failed:**")
		for _, f := range r.Failures {
			l.add("  - %s: %s", f.Address, f.Error)
		}
	}
	return l.String()
}

func renderServable(tokens []serving.ServableToken) string {
	if len(tokens) == 0 {
		return "No servable tokens. Use path402_acquire first."
	}
	var l lines
	l.add("## Servable Tokens (%d)", len(tokens))
	l.blank()
	l.add("| $address | Position | Paid | Serves | Revenue | ROI |")
	l.add("|---|---|---|---|---|---|")
	for _, t := range tokens {
		l.add("| %s | #%d | %d SAT | %d | %d SAT | %.0f%% |", t.Address, t.Position, t.PricePaid, t.ServeCount, t.Revenue, t.ROIPercent)
	}
	return l.String()
}
