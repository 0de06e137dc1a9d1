package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:           "docfinder",
		Short:         "retrieval augmented question answering over local documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	rootCmd.AddCommand(
		newIngestCmd(&configPath),
		newQueryCmd(&configPath),
		newChatCmd(&configPath),
		newServeCmd(&configPath),
		newModelsCmd(&configPath),
		newTokenCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}
