package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/layerpaint/internal/session"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "layerpaint version %s (session format v%d)\n", version, session.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
