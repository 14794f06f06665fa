// Package cmd provides the CLI commands for sessionflow.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sessionflow",
	Short: "sessionflow - cookie sessions, password and OAuth2 login",
	Long: `sessionflow serves a small authentication demo: password registration
and login, OAuth2 login, logout and a per-session counter, all backed by
signed session cookies and a Redis session store.

Configuration:
  Config is loaded from sessionflow.yaml in the current directory or
  $HOME/.sessionflow/. Environment variables override config values with
  the SESSIONFLOW_ prefix.
  Example: SESSIONFLOW_SESSION_SECRET=...`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sessionflow.yaml)")
}
