package cmd

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/jobstate/internal/jobstatectl"
	"github.com/G-Research/jobstate/pkg/client"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "jobstatectl",
		Short:         "jobstatectl inspects and administers the job state service.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	client.AddJobStateApiConnectionCommandlineArgs(cmd)
	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.jobstatectl.yaml)")
	cmd.PersistentFlags().StringSlice("redis", nil, "read the site mask from this redis mirror instead of the server")
	cmd.PersistentFlags().String("redisKey", "SiteMask", "redis hash holding the mirrored site mask")
	_ = viper.BindPFlag("redis", cmd.PersistentFlags().Lookup("redis"))
	_ = viper.BindPFlag("redisKey", cmd.PersistentFlags().Lookup("redisKey"))

	cmd.AddCommand(
		jobCmd(),
		sitesCmd(),
		summaryCmd(),
		versionCmd(),
	)
	return cmd
}

func initParams(cmd *cobra.Command, params *jobstatectl.Params) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if err := client.LoadCommandlineArgsFromConfigFile(configPath); err != nil {
		return err
	}
	params.ApiConnectionDetails = client.ExtractCommandlineJobStateApiConnectionDetails()
	params.RedisAddrs = viper.GetStringSlice("redis")
	params.RedisKey = viper.GetString("redisKey")
	return nil
}

func parseJobIds(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
