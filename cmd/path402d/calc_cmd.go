package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/pricing"
	"github.com/b0ase/path402/pkg/protocol"
)

// curveFlags are the pricing flags shared by price and economics.
type curveFlags struct {
	model    string
	base     int64
	capacity int64
}

func (c *curveFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.model, "model", string(pricing.KindSqrtDecay), "Pricing model (sqrt_decay, fixed, linear, exponential)")
	fs.Int64Var(&c.base, "base", 0, "Base price in SAT (REQUIRED)")
	fs.Int64Var(&c.capacity, "capacity", 0, "Maximum supply, 0 for unbounded")
}

func (c *curveFlags) toModel() pricing.Model {
	m := pricing.Model{Kind: pricing.Kind(c.model), BasePrice: c.base}
	if c.capacity > 0 {
		capacity := c.capacity
		m.Capacity = &capacity
	}
	return m
}

func runPriceCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("price", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		curve      curveFlags
		rawPoints  string
		jsonOutput bool
	)
	curve.register(cmd)
	cmd.StringVar(&rawPoints, "points", "0,1,10,100", "Comma separated supplies")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if curve.base <= 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --base must be positive")
		cmd.Usage()
		return 2
	}
	points, err := parseSupplies(rawPoints)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	schedule, err := pricing.Schedule(curve.toModel(), points)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		return printJSON(stdout, stderr, schedule)
	}
	_, _ = fmt.Fprintf(stdout, "%-10s %s\n", "SUPPLY", "PRICE (SAT)")
	for _, p := range schedule {
		_, _ = fmt.Fprintf(stdout, "%-10d %d\n", p.Supply, p.Price)
	}
	return 0
}

func runEconomicsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("economics", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		curve         curveFlags
		supply        int64
		projected     int64
		issuerShare   float64
		participation float64
		jsonOutput    bool
	)
	curve.register(cmd)
	cmd.Int64Var(&supply, "supply", 0, "Tokens already issued")
	cmd.Int64Var(&projected, "projected", economics.DefaultProjectedSupply, "Projected final supply")
	cmd.Float64Var(&issuerShare, "issuer-share", 0.5, "Fraction of each sale kept by the issuer")
	cmd.Float64Var(&participation, "participation", economics.DefaultParticipation, "Fraction of serving revenue you expect to win")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if curve.base <= 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --base must be positive")
		cmd.Usage()
		return 2
	}

	model := curve.toModel()
	c, err := pricing.New(model)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	price, err := c.Price(supply)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	report, err := economics.Analyze(protocol.Terms{
		Address:         "$calculator",
		ProtocolVersion: protocol.Version,
		CurrentPrice:    price,
		CurrentSupply:   supply,
		Pricing:         model,
		Revenue:         protocol.RevenueModel{Model: "fixed_issuer_share", IssuerShare: issuerShare},
	}, projected, participation)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		return printJSON(stdout, stderr, report)
	}
	_, _ = fmt.Fprintf(stdout, "Price now:      %d SAT (position #%d)\n", report.CurrentPrice, report.BuyerPosition)
	if report.Breakeven.Achievable {
		_, _ = fmt.Fprintf(stdout, "Breakeven:      after %d more buyers (%s)\n", report.Breakeven.BuyersNeeded, report.Probability)
	} else {
		_, _ = fmt.Fprintf(stdout, "Breakeven:      not reached by supply %d\n", report.Breakeven.Horizon)
	}
	_, _ = fmt.Fprintf(stdout, "ROI at 2x:      %.1f%%\n", report.ROIAt2x*100)
	_, _ = fmt.Fprintf(stdout, "ROI at 10x:     %.1f%%\n", report.ROIAt10x*100)
	_, _ = fmt.Fprintf(stdout, "ROI at %-8d %.1f%%\n", report.ProjectedSupply, report.ROIAtProjected*100)
	_, _ = fmt.Fprintln(stdout, report.Explanation)
	return 0
}

func parseSupplies(raw string) ([]int64, error) {
	var out []int64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid supply %q", p)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("--points is empty")
	}
	return out, nil
}

func printJSON(stdout, stderr io.Writer, v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}
