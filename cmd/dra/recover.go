package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// withRecover wraps a command's RunE so a contract-violation panic raised
// anywhere below it (reactor.ErrSelfCancel, wire.ErrReadArmed/
// ErrWriteInFlight, reactor.ErrReentrant surfaced via panic in a misused
// handler, or any other programming-error panic) turns into a clean
// process exit instead of an unhandled crash. Recovered only here, at the
// top of the command handlers — never silently swallowed deeper down.
func withRecover(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("dra: fatal: %v", rec)
			}
		}()
		return run(cmd, args)
	}
}
