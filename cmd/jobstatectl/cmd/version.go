package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobstate/internal/jobstatectl"
)

func versionCmd() *cobra.Command {
	a := jobstatectl.New()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print client version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return a.Version()
		},
	}
	return cmd
}
