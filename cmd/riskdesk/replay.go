package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"riskdesk/config"
	"riskdesk/internal/bus"
	"riskdesk/internal/logger"
	"riskdesk/internal/replay"
)

var (
	replayLimit   int
	replayOverlay string
	replayStart   string
	replayEnd     string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-derive rule decisions from the durable event log",
	Long: `Reads recent events from the postgres event log and replays them
through the rules engine, optionally with a strategy overlay applied on top
of each event's recorded data context. The fidelity report is printed as
JSON. Requires DATABASE_URL.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().IntVar(&replayLimit, "limit", 1000, "Maximum events to load")
	replayCmd.Flags().StringVar(&replayOverlay, "overlay", "", "Strategy overlay as JSON, e.g. '{\"size_multiplier\":2}'")
	replayCmd.Flags().StringVar(&replayStart, "start", "", "Window start (RFC3339); empty = unbounded")
	replayCmd.Flags().StringVar(&replayEnd, "end", "", "Window end (RFC3339); empty = unbounded")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("replay requires DATABASE_URL")
	}
	log := logger.Init("riskdesk-replay", cfg.LogLevel)

	opts := replay.Options{}
	if replayOverlay != "" {
		if err := json.Unmarshal([]byte(replayOverlay), &opts.StrategyOverlay); err != nil {
			return fmt.Errorf("invalid overlay: %w", err)
		}
	}
	if replayStart != "" {
		if opts.Start, err = time.Parse(time.RFC3339, replayStart); err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
	}
	if replayEnd != "" {
		if opts.End, err = time.Parse(time.RFC3339, replayEnd); err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
	}

	pglog, err := bus.NewPGLog(cfg.DatabaseURL, logger.Component(log, "eventlog"))
	if err != nil {
		return err
	}
	defer pglog.Close()

	events, err := pglog.Recent(replayLimit)
	if err != nil {
		return err
	}
	log.Info().Int("events", len(events)).Msg("loaded event window")

	evbus := bus.New(64, nil, logger.Component(log, "bus"))
	defer evbus.Close()

	report := replay.NewEngine(evbus, logger.Component(log, "replay")).Run(events, opts)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
