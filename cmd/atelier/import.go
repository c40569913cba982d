package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/gateway"
	"github.com/atelier-run/atelier/pkg/registry"
)

var importCmd = &cobra.Command{
	Use:   "import <document.json>",
	Short: "Validate a workspace document and replace the stored one",
	Long: `Import is all-or-nothing: the document is validated workspace by
workspace (orchestrator singletons, edge endpoints) and rejected whole on
the first violation. Nothing is merged with existing state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := newStore(cfg.Storage)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var doc domain.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%v: %w", err, domain.ErrMalformedDocument)
		}

		reg := registry.New(registry.WithLogger(logger))
		gw := gateway.New(reg, store, gateway.WithLogger(logger))
		if err := gw.ImportAll(&doc); err != nil {
			return err
		}
		if err := gw.Flush(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d workspaces\n", len(doc.Workspaces))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
