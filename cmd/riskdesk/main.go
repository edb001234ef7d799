package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "riskdesk",
	Short: "Macro-aware crypto risk desk",
	Long: `riskdesk ingests tariff, news, and market data, derives regime and
microstructure analytics, and routes orders through a risk-gated execution
router. Paper trading is the default; live execution must be enabled
explicitly via EXECUTION_MODE=live.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
