package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/riftlab/dra/pkg/coordinator"
	"github.com/riftlab/dra/pkg/log"
	"github.com/riftlab/dra/pkg/reactor"
	"github.com/riftlab/dra/pkg/stategraph"
	"github.com/riftlab/dra/pkg/wire"
	"github.com/riftlab/dra/pkg/workerside"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker: dial the master and answer its job protocol",
	RunE:  withRecover(runWorkerCmd),
}

func init() {
	workerCmd.Flags().String("host", "127.0.0.1", "master host to dial")
	workerCmd.Flags().Int("port", 0, "master port to dial (required)")
	workerCmd.Flags().Int32("offset", 0, "offset applied by the fixture analysis module (stand-in for the real analysis entry point)")
}

func runWorkerCmd(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	offset, _ := cmd.Flags().GetInt32("offset")

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dra worker: dial master %s: %w", addr, err)
	}

	if err := runWorker(conn, fixtureControllerFactory(offset)); err != nil {
		return err
	}
	fmt.Println("Worker disconnected cleanly.")
	return nil
}

// runWorker drives conn through the worker side of the job protocol until
// the master either finishes the run (a clean disconnect once the worker
// has reached the stop state) or the connection fails for another reason.
func runWorker(conn net.Conn, factory coordinator.ControllerFactory) error {
	r := reactor.New()
	reg := newRegistry()
	logger := log.WithComponent("worker")

	graph, s, _ := stategraph.JobGraph()
	ch := wire.NewChannel(conn, reg, r.Post)
	wm := workerside.New(graph, s.Start, ch)
	wr := coordinator.NewWorkerRuntime(factory)
	wr.Register(wm, s, ch)

	var runErr error
	wm.SetClosedHandler(func(err error) {
		cleanShutdown := wm.State() == s.Stop &&
			(errors.Is(err, wire.ErrPeerReset) || errors.Is(err, wire.ErrPeerAborted))
		if !cleanShutdown {
			runErr = err
			logger.Error().Err(err).Msg("channel closed unexpectedly")
		}
		r.Stop()
	})

	closeForSignal := func(sig os.Signal) {
		logger.Warn().Str("signal", sig.String()).Msg("received signal, closing connection")
		ch.Close()
	}
	r.NotifySignal(os.Interrupt, closeForSignal)
	r.NotifySignal(syscall.SIGTERM, closeForSignal)

	startKeepAlive(r)
	wm.Start()

	if err := r.Run(context.Background()); err != nil {
		return fmt.Errorf("dra worker: %w", err)
	}
	return runErr
}
