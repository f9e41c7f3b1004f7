package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/export"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <table>",
	Short: "Write a table to a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]
		if t, err := domain.ParseTableType(table); err == nil {
			table = t.FactTable()
		}
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		if exportOutput == "" {
			exportOutput = export.FileName(table, format, time.Now())
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		result, err := a.exporter.Export(cmd.Context(), out, table, format)
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(exportOutput)
			return fmt.Errorf("export %s: %w", table, err)
		}
		color.Green("Wrote %d rows (%d bytes) to %s\n", result.Rows, result.Bytes, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output path; derived from the table name when empty")
}
