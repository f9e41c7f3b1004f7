package main

import (
	"fmt"
	"sort"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload table stats and the hot window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.service.RefreshMetadata(cmd.Context())
		if err != nil {
			return err
		}
		color.Green("Window %s .. %s\n", snap.WindowStart.Format(domain.DateLayout), snap.WindowEnd.Format(domain.DateLayout))

		tables := make([]string, 0, len(snap.Stats))
		for table := range snap.Stats {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			stats := snap.Stats[table]
			latest := "-"
			if stats.LatestDate != nil {
				latest = stats.LatestDate.Format(domain.DateLayout)
			}
			fmt.Printf("  %-24s %8d rows  latest %s  hot %d\n", table, stats.RowCount, latest, len(snap.TableRows(table)))
		}
		return nil
	},
}
