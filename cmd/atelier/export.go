package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelier-run/atelier/pkg/gateway"
	"github.com/atelier-run/atelier/pkg/registry"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the persisted workspace document as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := newStore(cfg.Storage)
		if err != nil {
			return err
		}

		reg := registry.New(registry.WithLogger(logger))
		gw := gateway.New(reg, store, gateway.WithLogger(logger))
		if err := gw.Load(cmd.Context()); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		doc := gw.ExportAll()
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		if out == "" || out == "-" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return os.WriteFile(out, data, 0644)
	},
}

func init() {
	exportCmd.Flags().String("out", "-", "Output file ('-' for stdout)")
	rootCmd.AddCommand(exportCmd)
}
