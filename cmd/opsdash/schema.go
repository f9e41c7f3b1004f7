package main

import (
	"fmt"
	"strings"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and edit table schemas",
}

var schemaListCmd = &cobra.Command{
	Use:   "list [table]",
	Short: "Print schema fields",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		schemas := a.registry.All()
		if len(args) == 1 {
			table, err := domain.ParseTableType(args[0])
			if err != nil {
				return err
			}
			s, err := a.registry.Get(table)
			if err != nil {
				return err
			}
			schemas = []domain.Schema{s}
		}
		for _, s := range schemas {
			color.Cyan("%s (%s)\n", s.Table, s.Table.FactTable())
			for _, f := range s.Fields {
				req := ""
				if f.Required {
					req = "required"
				}
				tags := ""
				if len(f.Tags) > 0 {
					tags = "[" + strings.Join(f.Tags, ", ") + "]"
				}
				if f.Unit != "" {
					tags += " (" + f.Unit + ")"
				}
				fmt.Printf("  %-26s %-10s %-8s %s %s\n", f.Key, f.Type, req, f.Label, tags)
			}
		}
		return nil
	},
}

var schemaAddRequired bool

var schemaAddCmd = &cobra.Command{
	Use:   "add-field <table> <key> <label> <type>",
	Short: "Append a field to a schema",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := domain.ParseTableType(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.registry.AddField(cmd.Context(), table, domain.FieldDefinition{
			Key:      args[1],
			Label:    args[2],
			Type:     domain.FieldType(args[3]),
			Required: schemaAddRequired,
		}); err != nil {
			return err
		}
		color.Green("Added %s to %s\n", args[1], table)
		return nil
	},
}

var schemaRelabelCmd = &cobra.Command{
	Use:   "relabel <table> <key> <label>",
	Short: "Change a field label, keeping the old one as a tag",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := domain.ParseTableType(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.registry.RelabelField(cmd.Context(), table, args[1], args[2]); err != nil {
			return err
		}
		color.Green("Relabelled %s.%s\n", table, args[1])
		return nil
	},
}

func init() {
	schemaAddCmd.Flags().BoolVar(&schemaAddRequired, "required", false, "Rows without this field are skipped")
	schemaCmd.AddCommand(schemaListCmd, schemaAddCmd, schemaRelabelCmd)
}
