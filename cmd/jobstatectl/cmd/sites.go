package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/internal/jobstatectl"
)

func sitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Inspect and change the site mask",
	}
	cmd.AddCommand(
		sitesListCmd(),
		sitesSetCmd("ban", "Stop sending jobs to sites", sitemask.Banned),
		sitesSetCmd("allow", "Send jobs to sites again", sitemask.Active),
		sitesSetCmd("probe", "Put sites on probation", sitemask.Probing),
		sitesCheckCmd(),
		sitesHistoryCmd(),
		sitesRemoveCmd(),
	)
	return cmd
}

func sitesListCmd() *cobra.Command {
	a := jobstatectl.New()
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the site mask",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ListSites(filter)
		},
	}
	cmd.Flags().StringVar(&filter, "status", "All", "only list sites with this status")
	return cmd
}

func sitesSetCmd(use string, short string, siteStatus sitemask.Status) *cobra.Command {
	a := jobstatectl.New()
	siteArgs := jobstatectl.SiteStatusArgs{Status: siteStatus}
	cmd := &cobra.Command{
		Use:   use + " <site>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			siteArgs.Sites = args
			return a.SetSiteStatus(siteArgs)
		},
	}
	cmd.Flags().StringVar(&siteArgs.Author, "author", "", "who is making the change")
	cmd.Flags().StringVar(&siteArgs.Comment, "comment", "", "why the change is made")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func sitesCheckCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "check <site>...",
		Short: "Show which sites may receive jobs",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.CheckSites(args)
		},
	}
}

func sitesHistoryCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "history [site]...",
		Short: "Show site mask changes, for every site when none is given",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.SiteHistory(args)
		},
	}
}

func sitesRemoveCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "remove <site>...",
		Short: "Drop sites from the mask",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.RemoveSites(args)
		},
	}
}
