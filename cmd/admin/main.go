package main

import (
	"os"

	"github.com/spf13/cobra"
)

var baseURL string

var rootCmd = &cobra.Command{
	Use:           "truce-admin",
	Short:         "Operator tool for the truce server",
	Long:          "Talks to the loopback-only admin HTTP surface of a running server, or inspects stored documents offline.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
