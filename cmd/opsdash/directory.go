package main

import (
	"fmt"
	"os"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the shop, SKU and agent directories",
}

var directoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored directory as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		dir, err := a.service.Directory(cmd.Context())
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(dir, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var directoryLoadCmd = &cobra.Command{
	Use:   "load <file.json>",
	Short: "Replace the stored directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var dir domain.Directory
		if err := json.Unmarshal(raw, &dir); err != nil {
			return fmt.Errorf("failed to decode %s: %w", args[0], err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.SaveDirectory(cmd.Context(), dir); err != nil {
			return err
		}
		color.Green("Saved %d shops, %d SKUs, %d agents\n", len(dir.Shops), len(dir.SKUs), len(dir.Agents))
		return nil
	},
}

var directoryPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Write shops and SKUs to the dimension tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.PublishDirectory(cmd.Context())
		if err != nil {
			return err
		}
		color.Green("Published %d shops and %d SKUs\n", result.Shops, result.SKUs)
		return nil
	},
}

func init() {
	directoryCmd.AddCommand(directoryShowCmd, directoryLoadCmd, directoryPublishCmd)
}
