package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobstate/internal/jobstatectl"
)

func summaryCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "summary",
		Short: "Show recent job counts per site and status",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.SiteSummary()
		},
	}
}
