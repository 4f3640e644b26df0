package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryanbagade/gossip-fabric/internal/api"
	"github.com/aryanbagade/gossip-fabric/internal/config"
	"github.com/aryanbagade/gossip-fabric/internal/control"
	"github.com/aryanbagade/gossip-fabric/internal/logging"
	"github.com/aryanbagade/gossip-fabric/internal/model"
)

func newNodeCmd() *cobra.Command {
	var (
		configPath   string
		selfKey      string
		dataDir      string
		telemetryDir string
		debug        bool
		bindAddr     string
		gossipRate   int
		targetCount  int
	)

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run the HTTP surface and gossip engine for one node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, func(v *viper.Viper) error {
				return v.BindPFlags(cmd.Flags())
			})
			if err != nil {
				return err
			}
			if bindAddr != "" {
				cfg.BindAddr = bindAddr
			}
			if gossipRate > 0 {
				cfg.GossipRate = gossipRate
			}
			if targetCount > 0 {
				cfg.TargetCount = targetCount
			}

			log, err := logging.New(debug)
			if err != nil {
				return fmt.Errorf("node: building logger: %w", err)
			}
			defer log.Sync()

			ctrl, err := control.NewController(model.PeerKey(selfKey), dataDir, telemetryDir, log)
			if err != nil {
				return fmt.Errorf("node: building controller: %w", err)
			}
			defer ctrl.Close()

			metrics := api.NewMetrics()
			ctrl.SetHooks(metrics)
			ctrl.SetMetricsRecorder(metrics)

			router := api.NewRouter(ctrl, metrics, log)
			srv := &http.Server{Addr: cfg.BindAddr, Handler: router}

			go func() {
				log.Infow("node listening", "bind_addr", cfg.BindAddr, "self", selfKey)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorw("node: HTTP listener failed", "error", err)
					os.Exit(1)
				}
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			log.Infow("node shutting down")
			ctrl.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.ini", "path to config.ini")
	cmd.Flags().StringVar(&selfKey, "self", "127.0.0.1:5000", "this node's peer_key (ip:port)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "path whose disk usage the sampler reports as the storage field")
	cmd.Flags().StringVar(&telemetryDir, "telemetry-dir", "./telemetry", "directory for the local telemetry buffer")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&bindAddr, "bind-addr", "", "override config.ini's [node] bind_addr")
	cmd.Flags().IntVar(&gossipRate, "gossip-rate", 0, "override config.ini's [node] gossip_rate (seconds)")
	cmd.Flags().IntVar(&targetCount, "target-count", 0, "override config.ini's [node] target_count")

	return cmd
}
