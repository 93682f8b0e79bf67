package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flowexec "github.com/cuemby/flowexec"
	"github.com/cuemby/flowexec/internal/bus"
	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/flowfsm"
	"github.com/cuemby/flowexec/internal/log"
	"github.com/cuemby/flowexec/internal/metrics"
	"github.com/cuemby/flowexec/internal/sharedstate"
	"github.com/cuemby/flowexec/internal/tasks"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "flowmanagerd",
	Short:   "flowmanagerd runs the job execution manager",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("flowmanagerd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a manager process in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		nodeID, _ := cmd.Flags().GetString("node-id")
		raftAddr, _ := cmd.Flags().GetString("raft-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		standalone, _ := cmd.Flags().GetBool("standalone")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := tasks.NewBoltStore(cfg.Executor.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open task store: %w", err)
		}
		defer store.Close()

		var backend sharedstate.Backend
		if standalone {
			backend = sharedstate.NewMemoryBackend()
		} else {
			backend, err = flowfsm.NewRaftBackend(flowfsm.Config{
				NodeID:   nodeID,
				BindAddr: raftAddr,
				DataDir:  cfg.Executor.DataDir,
			})
			if err != nil {
				return fmt.Errorf("failed to start shared state backend: %w", err)
			}
		}

		transport := bus.NewMemoryBus()

		mgr, err := flowexec.New(&cfg, store, backend, transport)
		if err != nil {
			return fmt.Errorf("failed to wire manager: %w", err)
		}
		if err := flowexec.Init(mgr); err != nil {
			return err
		}

		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				log.Logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

		stop := make(chan struct{})
		go mgr.Run(stop)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		close(stop)
		log.Logger.Info().Msg("shutting down")
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "path to YAML configuration file")
	runCmd.Flags().String("node-id", "node-1", "unique identifier for this manager's raft participation")
	runCmd.Flags().String("raft-addr", "127.0.0.1:7946", "bind address for raft consensus traffic")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "bind address for the Prometheus metrics endpoint")
	runCmd.Flags().Bool("standalone", true, "use an in-memory shared-state backend instead of raft")
}
