package ingest

import (
	"github.com/rs/zerolog"

	"riskdesk/config"
	"riskdesk/internal/store"
)

// BuildScheduler assembles the polling jobs for every upstream feed using the
// configured intervals. The Hyperliquid stream is not a polled job; run it
// separately via NewHyperliquidWS.
func BuildScheduler(cfg *config.Config, st store.Store, bus Emitter, log zerolog.Logger) *Scheduler {
	sched := NewScheduler(log)

	pyth := NewPythPoller(st, log)
	kraken := NewKrakenPoller(st, log)
	coingecko := NewCoinGeckoPoller(st, log)
	drift := NewDriftPoller(st, log)
	wits := NewWITSPoller(st, bus, cfg.WITSCountries, cfg.WITSProducts, log)
	gdelt := NewGDELTPoller(st, bus, cfg.GDELTKeywords, log)

	sched.Add(Job{Name: "pyth", Interval: cfg.Jobs.Pyth, Run: pyth.Poll})
	sched.Add(Job{Name: "kraken", Interval: cfg.Jobs.Kraken, Run: kraken.Poll})
	sched.Add(Job{Name: "coingecko", Interval: cfg.Jobs.CoinGecko, Run: coingecko.Poll})
	sched.Add(Job{Name: "drift", Interval: cfg.Jobs.Drift, Run: drift.Poll})
	sched.Add(Job{Name: "wits", Interval: cfg.Jobs.WITS, Run: wits.Poll})
	sched.Add(Job{Name: "gdelt", Interval: cfg.Jobs.GDELT, Run: gdelt.Poll})

	// The Solana RPC probe only runs when an endpoint is configured; agents
	// fall back to treating the chain as healthy without it.
	if cfg.SolanaRPCURL != "" {
		solana := NewSolanaPoller(cfg.SolanaRPCURL, st, log)
		sched.Add(Job{Name: "solana", Interval: cfg.Jobs.Solana, Run: solana.Poll})
	}

	return sched
}
