package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/riftlab/dra/pkg/config"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run a master and N worker subprocesses on this machine",
	RunE:  withRecover(runLocalCmd),
}

func init() {
	localCmd.Flags().String("config", "", "path to the job's config file (required)")
	localCmd.Flags().Int("workers", 4, "number of worker subprocesses to spawn")
	localCmd.Flags().String("metrics-addr", "", "if set, serve /metrics, /health, /ready, /live on this address")
	localCmd.Flags().Int32("offset", 0, "offset applied by the fixture analysis module (stand-in for the real analysis entry point)")
}

func runLocalCmd(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	numWorkers, _ := cmd.Flags().GetInt("workers")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	offset, _ := cmd.Flags().GetInt32("offset")
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	if cfgPath == "" {
		return errors.New("dra local: --config is required")
	}
	if numWorkers < 1 {
		return errors.New("dra local: --workers must be at least 1")
	}

	cfg, err := config.ParseFile(cfgPath)
	if err != nil {
		return fmt.Errorf("dra local: load config: %w", err)
	}
	if len(cfg.Datasets) == 0 {
		return errors.New("dra local: config declares no datasets")
	}

	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("dra local: locate own binary: %w", err)
	}

	// A loopback TCP listener stands in for the socketpair a fork-based
	// design would use to hand each child its connection directly. Binding
	// port 0 and reading back the OS-assigned port lets any number of
	// `local` runs share a host without colliding.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("dra local: bind loopback listener: %w", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	workerArgs := func() []string {
		return []string{
			"worker",
			"--host", "127.0.0.1",
			"--port", strconv.Itoa(port),
			"--offset", strconv.Itoa(int(offset)),
			"--log-level", logLevel,
		}
	}

	cmds := make([]*exec.Cmd, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wargs := workerArgs()
		if logJSON {
			wargs = append(wargs, "--log-json")
		}
		wc := exec.Command(selfPath, wargs...)
		wc.Stdout = os.Stdout
		wc.Stderr = os.Stderr
		if err := wc.Start(); err != nil {
			killAll(cmds)
			return fmt.Errorf("dra local: start worker %d: %w", i, err)
		}
		cmds = append(cmds, wc)
	}

	runErr := runMaster(ln, cfgPath, cfg, offset, metricsAddr)

	for i, wc := range cmds {
		if err := wc.Wait(); err != nil && runErr == nil {
			runErr = fmt.Errorf("dra local: worker %d: %w", i, err)
		}
	}

	if runErr != nil {
		return runErr
	}
	fmt.Println("Master completed successfully.")
	return nil
}

func killAll(cmds []*exec.Cmd) {
	for _, wc := range cmds {
		if wc.Process != nil {
			_ = wc.Process.Kill()
		}
	}
}
