package client

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func AddJobStateApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("jobStateUrl", "localhost:8080", "specify jobstate server url")
	_ = viper.BindPFlag("jobStateUrl", rootCmd.PersistentFlags().Lookup("jobStateUrl"))
	rootCmd.PersistentFlags().Duration("timeout", DefaultTimeout, "timeout for each request to the server")
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	rootCmd.PersistentFlags().Uint("retryAttempts", 3, "attempts for requests that are safe to repeat")
	_ = viper.BindPFlag("retryAttempts", rootCmd.PersistentFlags().Lookup("retryAttempts"))
}

// LoadCommandlineArgsFromConfigFile reads cfgFile, or $HOME/.jobstatectl.yaml when cfgFile is empty.
// A missing default file is not an error.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error getting user home directory: %s", err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".jobstatectl")
	}

	viper.SetEnvPrefix("JOBSTATECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// Only happens for the default file, which users do not have to create
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

func ExtractCommandlineJobStateApiConnectionDetails() *ApiConnectionDetails {
	return &ApiConnectionDetails{
		JobStateUrl:   viper.GetString("jobStateUrl"),
		Timeout:       viper.GetDuration("timeout"),
		RetryAttempts: viper.GetUint("retryAttempts"),
	}
}

// ContextTimeout is the per command deadline used by the command line tools.
func ContextTimeout() time.Duration {
	if t := viper.GetDuration("timeout"); t > 0 {
		return t
	}
	return DefaultTimeout
}
