package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aryanbagade/gossip-fabric/internal/logging"
	"github.com/aryanbagade/gossip-fabric/internal/telemetry"
)

func newTelemetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Inspect or drain a node's local telemetry staging buffer",
	}
	cmd.AddCommand(newTelemetryDumpCmd())
	return cmd
}

func newTelemetryDumpCmd() *cobra.Command {
	var (
		telemetryDir string
		selfKey      string
		clearAfter   bool
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every round staged in the telemetry buffer, optionally clearing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(debug)
			if err != nil {
				return err
			}
			defer log.Sync()

			buf, err := telemetry.Open(telemetryDir, selfKey, log)
			if err != nil {
				return fmt.Errorf("telemetry dump: opening buffer: %w", err)
			}
			defer buf.Close()

			rounds, stats, events, err := buf.PendingRounds()
			if err != nil {
				return fmt.Errorf("telemetry dump: reading pending rounds: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{
				"rounds":        rounds,
				"round_stats":   stats,
				"transmissions": events,
			}); err != nil {
				return fmt.Errorf("telemetry dump: encoding output: %w", err)
			}

			if clearAfter && len(rounds) > 0 {
				if err := buf.Clear(rounds); err != nil {
					return fmt.Errorf("telemetry dump: clearing drained rounds: %w", err)
				}
				log.Infow("telemetry dump: drained buffer", "rounds", len(rounds))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&telemetryDir, "telemetry-dir", "./telemetry", "directory holding the node's telemetry buffer")
	cmd.Flags().StringVar(&selfKey, "self", "127.0.0.1:5000", "peer_key whose buffer to open (ip:port)")
	cmd.Flags().BoolVar(&clearAfter, "clear", false, "drop the dumped rounds from the buffer once printed")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}
