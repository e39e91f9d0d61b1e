package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loqa-clone",
		Short:         "Operate a voice cloning node",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (defaults plus LOQA_CLONE_* overrides when empty)")
	root.AddCommand(
		newLanguagesCmd(),
		newConvertCmd(),
		newValidateConfigCmd(),
		newJobsCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
