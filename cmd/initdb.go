package main

import (
	"github.com/spf13/cobra"

	"PlaceFinder-App/internal/infrastructure/database"
)

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "テーブルが無ければ作成する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client, err := database.NewPostgreSQLClientWithRetry(database.PostgreSQLConfig{
				URL: cfg.Database.URL,
			}, dbConnectRetries, cfg.RabbitMQ.ReconnectDelay, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.InitSchema(cmd.Context()); err != nil {
				return err
			}
			logger.Info("✅ スキーマを初期化しました")
			return nil
		},
	}
}
