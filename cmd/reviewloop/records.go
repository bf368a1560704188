package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/ledger"
	"github.com/reviewloop/reviewloop/internal/types"
)

var recordsLimit int

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List completion records from the ledger",
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

		records := led.All()
		if len(records) == 0 {
			fmt.Println("No completion records")
			return
		}

		// Newest last reads naturally in a terminal; trim from the front
		if recordsLimit > 0 && len(records) > recordsLimit {
			records = records[len(records)-recordsLimit:]
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		for _, rec := range records {
			verdict := string(rec.Verdict)
			switch rec.Verdict {
			case types.VerdictApprove:
				verdict = green(verdict)
			case types.VerdictComment:
				verdict = yellow(verdict)
			case types.VerdictSkipped:
				verdict = gray(verdict)
			}

			published := ""
			if !rec.Published && rec.Verdict != types.VerdictSkipped {
				published = red(" [unpublished]")
			}

			fmt.Printf("%s  %-24s %-8s tier=%-8s%s\n",
				rec.CompletedAt.Local().Format("2006-01-02 15:04"),
				rec.Locator, verdict, rec.Tier, published)
		}
	},
}

func init() {
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 0, "show only the newest N records (0 = all)")
	rootCmd.AddCommand(recordsCmd)
}
