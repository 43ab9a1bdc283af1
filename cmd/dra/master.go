package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/riftlab/dra/pkg/analysis"
	"github.com/riftlab/dra/pkg/analysis/fixture"
	"github.com/riftlab/dra/pkg/config"
	"github.com/riftlab/dra/pkg/coordinator"
	"github.com/riftlab/dra/pkg/log"
	"github.com/riftlab/dra/pkg/metrics"
	"github.com/riftlab/dra/pkg/reactor"
	"github.com/riftlab/dra/pkg/swarm"
	"github.com/riftlab/dra/pkg/wire"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the master: accept worker connections and coordinate one job",
	RunE:  withRecover(runMasterCmd),
}

func init() {
	masterCmd.Flags().Int("port", 0, "TCP port to listen on (required)")
	masterCmd.Flags().String("config", "", "path to the job's config file (required)")
	masterCmd.Flags().String("metrics-addr", "", "if set, serve /metrics, /health, /ready, /live on this address")
	masterCmd.Flags().Int32("offset", 0, "offset applied by the fixture analysis module (stand-in for the real analysis entry point)")
}

func runMasterCmd(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	cfgPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	offset, _ := cmd.Flags().GetInt32("offset")

	if cfgPath == "" {
		return errors.New("dra master: --config is required")
	}

	// Fatal configuration errors are reported before any Reactor starts.
	cfg, err := config.ParseFile(cfgPath)
	if err != nil {
		return fmt.Errorf("dra master: load config: %w", err)
	}
	if len(cfg.Datasets) == 0 {
		return errors.New("dra master: config declares no datasets")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("dra master: listen on port %d: %w", port, err)
	}
	defer ln.Close()

	if err := runMaster(ln, cfgPath, cfg, offset, metricsAddr); err != nil {
		return err
	}
	fmt.Println("Master completed successfully.")
	return nil
}

// runMaster drives one complete run to conclusion over ln, which the
// caller has already bound (and keeps ownership of, e.g. to read back an
// ephemeral port for `local` mode). It returns nil only once every
// dataset has been coordinated to completion; a non-nil error reports the
// coordinator's failure reason.
func runMaster(ln net.Listener, cfgPath string, cfg *config.Config, offset int32, metricsAddr string) error {
	r := reactor.New()
	reg := newRegistry()
	logger := log.WithComponent("master")

	var mergeCtrl analysis.Controller
	if cfg.Options.MergeMode == config.MergeMaster {
		mergeCtrl = fixture.New(offset, datasetFilesOf(cfg))
	}

	// channels is only ever touched on the Reactor's own goroutine: written
	// by acceptWorkers' posted callback, read by onDone. Once the run ends
	// (success or failure) the worker processes have nothing left to wait
	// for, and closing their channel here is what lets them exit instead of
	// blocking on a read forever.
	channels := make(map[swarm.WorkerID]*wire.Channel)

	var runErr error
	onDone := func(err error) {
		runErr = err
		for _, ch := range channels {
			ch.Close()
		}
		r.Stop()
	}
	cc := coordinator.New(cfgPath, cfg, mergeCtrl, onDone)

	obs := metrics.NewCoordinatorObserver()
	cc.SetObserver(obs)
	collector := metrics.NewCollector(cc.Graph(), cc.SwarmManager(), r)
	collector.Start()
	defer collector.Stop()

	metrics.RegisterComponent("reactor", true, "running")
	metrics.RegisterComponent("acceptor", true, "listening on "+ln.Addr().String())

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		fmt.Printf("Metrics endpoint: http://%s/metrics\n", metricsAddr)
	}

	abort := func(sig os.Signal) {
		logger.Warn().Str("signal", sig.String()).Msg("received signal, aborting run")
		cc.Abort(fmt.Errorf("dra master: aborted by %s", sig))
	}
	r.NotifySignal(os.Interrupt, abort)
	r.NotifySignal(syscall.SIGTERM, abort)

	startKeepAlive(r)

	go acceptWorkers(ln, reg, r, cc, channels)

	cc.Start()

	if err := r.Run(context.Background()); err != nil {
		return fmt.Errorf("dra master: %w", err)
	}
	return runErr
}

// acceptWorkers runs on its own goroutine, like wire.Channel's own read
// and write loops, and only ever touches cc through r.Post.
func acceptWorkers(ln net.Listener, reg *wire.Registry, r *reactor.Reactor, cc *coordinator.MasterCoordinator, channels map[swarm.WorkerID]*wire.Channel) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		sessionID := uuid.New().String()
		ch := wire.NewChannel(conn, reg, r.Post)
		r.Post(func() {
			id := cc.AddWorker(ch)
			channels[id] = ch
			log.WithWorkerID(int32(id)).With().Str("session_id", sessionID).Logger().
				Info().Msg("worker connected")
		})
	}
}
