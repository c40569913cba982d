package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atelier-run/atelier/internal/nodeconfig"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Fetch storage statistics from the executor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client := nodeconfig.New(cfg.Executor.RESTBaseURL)
		stats, err := client.GetStorageStats(cmd.Context())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var nodeConfigCmd = &cobra.Command{
	Use:   "node-config <node-id>",
	Short: "Fetch one node's stored configuration from the executor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client := nodeconfig.New(cfg.Executor.RESTBaseURL)
		nodeCfg, err := client.GetNodeConfig(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(nodeCfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(nodeConfigCmd)
}
