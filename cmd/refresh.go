package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/twstocklab/stockboard/internal/stocks"
)

type refreshFlags struct {
	batchSize   int
	concurrency int
	delayMs     int
	days        int
	startCode   int
	endCode     int
	limit       int
	indices     []int
}

// newRefreshCmd creates the 'refresh' subcommand, which runs a single refresh
// job synchronously and prints progress to stdout.
func newRefreshCmd() *cobra.Command {
	var flags refreshFlags

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Runs one refresh job and waits for it to finish",
		Long: `Resolves the symbol universe (optionally narrowed by code range,
explicit indices, or a limit), then refreshes each symbol's recent daily
prices in rate-limited batches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefreshCommand(cmd, flags)
		},
	}

	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "symbols per batch (default from config)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "concurrent updates per batch (default from config)")
	cmd.Flags().IntVar(&flags.delayMs, "delay-ms", -1, "pause between batches in milliseconds (default from config)")
	cmd.Flags().IntVar(&flags.days, "days", 0, "trading days of history per symbol (default from config)")
	cmd.Flags().IntVar(&flags.startCode, "start-code", 0, "lowest ticker code to include")
	cmd.Flags().IntVar(&flags.endCode, "end-code", 0, "highest ticker code to include")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "refresh only the first N symbols")
	cmd.Flags().IntSliceVar(&flags.indices, "indices", nil, "refresh only these listing positions")

	return cmd
}

func runRefreshCommand(cmd *cobra.Command, flags refreshFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	job := cfg.JobDefaults()
	if flags.batchSize > 0 {
		job.BatchSize = flags.batchSize
	}
	if flags.concurrency > 0 {
		job.Concurrency = flags.concurrency
	}
	if flags.delayMs >= 0 {
		job.InterBatchDelay = time.Duration(flags.delayMs) * time.Millisecond
	}
	if flags.days > 0 {
		job.Days = flags.days
	}
	job.Scope, err = scopeFromFlags(flags)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, appOptions{
		onProgress: func(_ stocks.RunSummary, msg string) {
			fmt.Println(msg)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.controller.Execute(cmd.Context(), job)
	if err != nil {
		return fmt.Errorf("refresh run: %w", err)
	}

	fmt.Printf("done: %d succeeded, %d failed of %d in %s\n",
		summary.Succeeded, summary.Failed, summary.Total, summary.Elapsed.Round(time.Millisecond))
	if summary.Cancelled {
		fmt.Println("run was cancelled before completion")
	}
	return nil
}

// scopeFromFlags maps the mutually exclusive narrowing flags onto a Scope.
func scopeFromFlags(flags refreshFlags) (stocks.Scope, error) {
	set := 0
	if flags.startCode > 0 || flags.endCode > 0 {
		set++
	}
	if len(flags.indices) > 0 {
		set++
	}
	if flags.limit > 0 {
		set++
	}
	if set > 1 {
		return stocks.Scope{}, fmt.Errorf("choose at most one of --start-code/--end-code, --indices, --limit")
	}

	switch {
	case flags.startCode > 0 || flags.endCode > 0:
		return stocks.Scope{Kind: stocks.ScopeRange, StartCode: flags.startCode, EndCode: flags.endCode}, nil
	case len(flags.indices) > 0:
		return stocks.Scope{Kind: stocks.ScopeIndices, Indices: flags.indices}, nil
	case flags.limit > 0:
		return stocks.Scope{Kind: stocks.ScopeLimit, Limit: flags.limit}, nil
	default:
		return stocks.Scope{Kind: stocks.ScopeAll}, nil
	}
}
