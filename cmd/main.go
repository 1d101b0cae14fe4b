package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"PlaceFinder-App/internal/config"
	"PlaceFinder-App/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "placefinder",
		Short:         "座標から周辺のスポットを解決するサービス",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("loglevel", "", "ログレベル (debug, info, warn, error)。LOG_LEVEL より優先")
	root.PersistentFlags().String("logformat", "", "ログ形式 (text, json)。LOG_FORMAT より優先")
	root.PersistentFlags().String("database-url", "", "PostgreSQLの接続文字列。DATABASE_URL より優先")
	root.PersistentFlags().String("rabbitmq-url", "", "RabbitMQの接続文字列。RABBITMQ_URL より優先")
	root.PersistentFlags().String("queue", "", "キュー名。QUEUE_NAME より優先")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newSubmitCmd(),
		newInitDBCmd(),
	)
	return root
}

// loadConfig 環境変数（.env含む）を読み、指定されたフラグで上書きする
func loadConfig(cmd *cobra.Command) (*config.Config, logr.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, logr.Discard(), err
	}
	applyFlagOverrides(cmd.Flags(), cfg)

	if err := cfg.Validate(); err != nil {
		return nil, logr.Discard(), err
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return cfg, logger, nil
}

func applyFlagOverrides(fs *pflag.FlagSet, cfg *config.Config) {
	override := func(name string, target *string) {
		if fs.Changed(name) {
			if v, err := fs.GetString(name); err == nil {
				*target = v
			}
		}
	}

	override("loglevel", &cfg.LogLevel)
	override("logformat", &cfg.LogFormat)
	override("database-url", &cfg.Database.URL)
	override("rabbitmq-url", &cfg.RabbitMQ.URL)
	override("queue", &cfg.RabbitMQ.QueueName)
	override("addr", &cfg.Server.Addr)
}
