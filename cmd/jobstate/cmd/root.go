package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/jobstate/internal/common"
	"github.com/G-Research/jobstate/internal/jobstate"
	"github.com/G-Research/jobstate/internal/jobstate/configuration"
)

const defaultConfigPath = "./config/jobstate"

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "jobstate",
		Short:        "Job state service of the workload management system",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSlice("config", nil, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	cmd.AddCommand(runCmd(), migrateCmd())
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the job state API",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return jobstate.Run(ctx, config)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := jobstate.Migrate(cmd.Context(), config); err != nil {
				return err
			}
			log.Info("Database schema is up to date")
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (configuration.JobStateConfiguration, error) {
	var config configuration.JobStateConfiguration
	overrides, err := cmd.Flags().GetStringSlice("config")
	if err != nil {
		return config, err
	}
	if _, err := common.LoadConfig(&config, defaultConfigPath, overrides); err != nil {
		return config, err
	}
	if err := configuration.CheckConfig(&config); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return config, err
	}
	return config, nil
}
