// Command yanet2ctl drives the core's external interface from the
// command line: attach to a shared-memory segment, apply a module/
// pipeline/device configuration to it, and print back what is
// currently published — in the spirit of the reference's per-module
// cmd/* binaries (flags -> Config -> constructor), but folded into one
// tool that exercises attach, update_modules, update_pipelines,
// update_devices and the list-info family in a single run.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "yanet2ctl",
	Short: "Inspect and configure a YANET2 shared-memory CP zone",
}

func init() {
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(countersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
