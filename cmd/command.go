// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "vaultclaw",
	Short: "Vaultclaw - versioned content-addressable vault storage",
	Long: `Vaultclaw is the storage substrate for multi-tenant personal vaults.
It deduplicates content into encrypted chunks, tracks files and objects as
immutable versions, and exposes a branch/snapshot version graph with a
review workflow on top.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var configDir string

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config_dir", ".", "Directory for configuration files")
}

// loadConfiguration merges an optional named config file with environment
// variables; flags keep precedence through viper bindings.
func loadConfiguration(name string) {
	viper.SetConfigName(name)
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.vaultclaw")
	viper.AddConfigPath("/etc/vaultclaw/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.MergeInConfig()
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
