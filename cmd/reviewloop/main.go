// reviewloop is a single-process pull request review bot: webhook intake,
// a deduplicating scheduler, and per-PR review pipelines backed by a
// durable completion ledger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reviewloop",
	Short: "Event-driven pull request review bot",
	Long: `reviewloop reviews pull requests with an AI model.

It receives pull_request webhook deliveries, deduplicates them against a
durable completion ledger, and runs one independent review pipeline per
pull request: fetch the diff, classify review depth by size, generate a
review, publish it, and record the completion.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default .reviewloop/config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the reviewloop version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reviewloop %s\n", version)
		},
	})
}
