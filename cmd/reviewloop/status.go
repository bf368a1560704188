package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/ledger"
	"github.com/reviewloop/reviewloop/internal/query"
	"github.com/reviewloop/reviewloop/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show completion statistics from the ledger",
	Long:  `Display review counts by verdict and publish outcome, read directly from the ledger snapshot. Works without the daemon running.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		led, err := ledger.Open(cfg.LedgerPath, cfg.Scheduler)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer led.Close()

		stats := query.NewService(led, nil, nil).Stats()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== reviewloop status ==="))
		fmt.Printf("%s %s\n", yellow("Ledger:"), cfg.LedgerPath)
		fmt.Printf("%s %d\n\n", yellow("Completed reviews:"), stats.TotalRecords)

		if stats.TotalRecords == 0 {
			fmt.Printf("  %s\n\n", gray("No completed reviews yet"))
			return
		}

		fmt.Printf("  %s %d\n", green("approve:"), stats.ByVerdict[types.VerdictApprove])
		fmt.Printf("  %s %d\n", yellow("comment:"), stats.ByVerdict[types.VerdictComment])
		fmt.Printf("  %s %d\n\n", gray("skipped:"), stats.ByVerdict[types.VerdictSkipped])

		fmt.Printf("%s %d published, %d unpublished", yellow("Publish:"), stats.Published, stats.Unpublished)
		if stats.Unpublished > 0 {
			fmt.Printf("  %s", red("(some reviews were recorded but never posted)"))
		}
		fmt.Println()

		if stats.LastCompletedAt != nil {
			fmt.Printf("%s %s\n", yellow("Last completion:"), stats.LastCompletedAt.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
