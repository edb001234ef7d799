package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"riskdesk/config"
	"riskdesk/internal/bus"
	"riskdesk/internal/logger"
	"riskdesk/internal/rules"
	"riskdesk/internal/sandbox"
)

var (
	sbShock      float64
	sbROC        float64
	sbVolRegime  string
	sbCarry      float64
	sbDivergence bool
	sbFlip       bool
	sbPrice      float64
	sbChangePct  float64
	sbVolatility float64
	sbSpreadBPS  float64
	sbSize       float64
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Compare the default and aggressive configs on a synthetic market state",
	RunE:  runSandbox,
}

func init() {
	rootCmd.AddCommand(sandboxCmd)
	sandboxCmd.Flags().Float64Var(&sbShock, "shock", 75.0, "News shock score")
	sandboxCmd.Flags().Float64Var(&sbROC, "roc", 8.0, "Tariff index rate of change, percent")
	sandboxCmd.Flags().StringVar(&sbVolRegime, "vol-regime", "high", "Volatility regime (low|normal|high|extreme)")
	sandboxCmd.Flags().Float64Var(&sbCarry, "carry", -0.2, "Annualized carry score")
	sandboxCmd.Flags().BoolVar(&sbDivergence, "divergence", false, "Cross-venue divergence alert active")
	sandboxCmd.Flags().BoolVar(&sbFlip, "funding-flip", false, "Funding regime flipped this window")
	sandboxCmd.Flags().Float64Var(&sbPrice, "price", 150.0, "Reference price")
	sandboxCmd.Flags().Float64Var(&sbChangePct, "change-pct", -3.0, "Simulated price change, percent")
	sandboxCmd.Flags().Float64Var(&sbVolatility, "volatility", 0.6, "Annualized volatility")
	sandboxCmd.Flags().Float64Var(&sbSpreadBPS, "spread-bps", 12.0, "Spread in basis points")
	sandboxCmd.Flags().Float64Var(&sbSize, "size", 0.1, "Suggested trade size")
}

func runSandbox(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Init("riskdesk-sandbox", cfg.LogLevel)

	evbus := bus.New(64, nil, logger.Component(log, "bus"))
	defer evbus.Close()

	state := sandbox.MarketState{
		Context: rules.Context{
			TariffRateOfChange:    sbROC,
			ShockScore:            sbShock,
			VolRegime:             sbVolRegime,
			CarryScore:            sbCarry,
			DivergenceAlertActive: sbDivergence,
			FundingRegimeFlipped:  sbFlip,
			Venue:                 "hyperliquid",
			Market:                "SOL-PERP",
			SuggestedSize:         sbSize,
		},
		CurrentPrice:   sbPrice,
		PriceChangePct: sbChangePct,
		Volatility:     sbVolatility,
		SpreadBPS:      sbSpreadBPS,
	}

	comparison := sandbox.NewEngine(evbus, logger.Component(log, "sandbox")).
		Run(sandbox.DefaultConfigA(), sandbox.DefaultConfigB(), state)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(comparison)
}
