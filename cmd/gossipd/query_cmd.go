package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryanbagade/gossip-fabric/internal/logging"
	"github.com/aryanbagade/gossip-fabric/internal/model"
	"github.com/aryanbagade/gossip-fabric/internal/node"
	"github.com/aryanbagade/gossip-fabric/internal/quorum"
)

func newQueryCmd() *cobra.Command {
	var (
		nodesFlag string
		quorumN   int
		target    string
		timeout   time.Duration
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one quorum-read against a set of nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(debug)
			if err != nil {
				return err
			}
			defer log.Sync()

			peers, err := parsePeerList(nodesFlag)
			if err != nil {
				return err
			}
			if target == "" {
				return fmt.Errorf("query: --target is required")
			}
			if quorumN <= 0 || quorumN > len(peers) {
				return fmt.Errorf("query: --quorum must be between 1 and the number of --nodes given")
			}

			members := node.NewMembership(peers)
			client := quorum.NewClient(members, "", timeout, log)

			ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(quorumN)*10)
			defer cancel()

			result, err := client.Read(ctx, model.PeerKey(target), quorumN)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"record":        result.Record,
				"messages_sent": result.MessagesSent,
			})
		},
	}

	cmd.Flags().StringVar(&nodesFlag, "nodes", "", "comma-separated ip:port peer list to sample from")
	cmd.Flags().IntVar(&quorumN, "quorum", 1, "quorum size Q")
	cmd.Flags().StringVar(&target, "target", "", "peer_key whose record to resolve")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func parsePeerList(csv string) (map[model.PeerKey]*model.Peer, error) {
	out := make(map[model.PeerKey]*model.Peer)
	for _, raw := range strings.Split(csv, ",") {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			continue
		}
		ip, portStr, ok := strings.Cut(addr, ":")
		if !ok {
			return nil, fmt.Errorf("query: %q is not ip:port", addr)
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return nil, fmt.Errorf("query: %q has a non-numeric port: %w", addr, err)
		}
		out[model.PeerKey(addr)] = &model.Peer{IP: ip, Port: port, IsAlive: true}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("query: --nodes must list at least one ip:port peer")
	}
	return out, nil
}
