// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db"
	"github.com/C-0711/Vaultclaw/pkg/metadata/db/postgres"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply metadata database migrations and exit",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	f := migrateCmd.Flags()
	f.String("db_dsn", "", "Database connection string")

	viper.BindPFlags(f)
}

func runMigrate(cmd *cobra.Command, args []string) {
	loadConfiguration("vaultclaw")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := db.DefaultConfig(db.DriverPostgres)
	cfg.DSN = viper.GetString("db_dsn")

	pg, err := postgres.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open metadata database")
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	logger.Info().Msg("migrations applied")
}
