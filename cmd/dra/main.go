// Command dra runs the distributed analysis runtime: a master process
// farms event-range work units out to worker processes over the pkg/wire
// framed protocol, tolerant of worker failure, and merges each worker's
// output into a final result per dataset.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riftlab/dra/pkg/log"
	"github.com/riftlab/dra/pkg/wire"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dra",
	Short: "Distributed analysis runtime: master/worker event-range coordination",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(localCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// newRegistry builds a fresh message-kind registry and registers every
// job-protocol message explicitly, rather than relying on package init()
// ordering.
func newRegistry() *wire.Registry {
	reg := wire.NewRegistry()
	wire.RegisterJobMessages(reg)
	return reg
}
