package main

import (
	"fmt"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	logsFile     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.service.History(cmd.Context())
		if err != nil {
			return err
		}
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[:historyLimit]
		}
		for _, rec := range records {
			status := color.GreenString(rec.Status)
			if rec.Status != domain.UploadStatusSuccess {
				status = color.RedString(rec.Status)
			}
			fmt.Printf("%s  %-8s %-18s %6d rows %4d skipped  %s\n",
				rec.UploadTime.Local().Format("2006-01-02 15:04"), status, rec.TargetTable, rec.RowCount, rec.SkippedCount, rec.FileName)
			if rec.Error != "" {
				fmt.Printf("    %s\n", rec.Error)
			}
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <table>",
	Short: "Show row level ingestion problems for a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]
		if t, err := domain.ParseTableType(table); err == nil {
			table = t.FactTable()
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.service.IngestionLogs(cmd.Context(), table, logsFile, historyLimit, 0)
		if err != nil {
			return err
		}
		for _, e := range entries {
			row := "-"
			if e.RowNumber != nil {
				row = fmt.Sprint(*e.RowNumber)
			}
			fmt.Printf("%s  %-24s row %-6s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.FileName, row, e.ErrorMessage)
		}
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
	logsCmd.Flags().StringVar(&logsFile, "file", "", "Only show problems from this file name")
	historyCmd.AddCommand(logsCmd)
}
