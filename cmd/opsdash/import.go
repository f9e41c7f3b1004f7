package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/ingestion"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	importTable string
	importShop  string
	importSheet string
	importYes   bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a report file (.xls, .xlsx or .csv)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		req := ingestion.ImportRequest{
			FileName: filepath.Base(path),
			Data:     data,
			ShopID:   importShop,
			Sheet:    importSheet,
			Progress: func(done, total int) {
				fmt.Fprintf(os.Stderr, "\r  %d/%d rows", done, total)
				if done == total {
					fmt.Fprintln(os.Stderr)
				}
			},
			ConfirmRedirect: confirmRedirect,
		}
		if importTable != "" {
			if req.Table, err = domain.ParseTableType(importTable); err != nil {
				return err
			}
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.RunImport(ctx, req)
		printImportResult(result)
		if err != nil {
			color.Red("Import failed: %s\n", err.Error())
			return err
		}
		color.Green("Imported %d rows into %s\n", result.Written, result.Table.FactTable())
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importTable, "table", "t", "", "Target table (shangzhi, jingzhuntong, customer_service); detected when empty")
	importCmd.Flags().StringVar(&importShop, "shop", "", "Shop id or name to stamp on every row")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "Worksheet name; the first sheet when empty")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Accept table redirects without asking")
}

func confirmRedirect(detected, selected domain.TableType, score float64) bool {
	if importYes {
		return true
	}
	color.Yellow("File looks like %s (score %.2f) but %s was selected.\n", detected, score, selected)
	fmt.Fprintf(os.Stderr, "Import into %s instead? [y/N] ", detected)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printImportResult(result ingestion.ImportResult) {
	if result.Redirected {
		color.Cyan("Redirected to %s\n", result.Table)
	}
	fmt.Printf("  sheet:   %s\n", result.Sheet)
	fmt.Printf("  rows:    %d total, %d valid, %d skipped\n", result.TotalRows, result.ValidRows, result.Skipped)
	for _, m := range result.Missing {
		fmt.Printf("  missing: %s in %d row(s)\n", m.Field, m.Count)
	}
}
