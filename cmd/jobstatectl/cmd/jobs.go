package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/jobstate/internal/jobstatectl"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and administer jobs",
	}
	cmd.AddCommand(
		jobGetCmd(),
		jobHistoryCmd(),
		jobStatusCmd(),
		jobRescheduleCmd(),
		jobDeleteCmd(),
		jobKillCmd(),
	)
	return cmd
}

func jobGetCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "get <jobId>",
		Short: "Show the status and main attributes of a job",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIds(args)
			if err != nil {
				return err
			}
			return a.GetJob(ids[0])
		},
	}
}

func jobHistoryCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "history <jobId>",
		Short: "Show every status change of a job",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIds(args)
			if err != nil {
				return err
			}
			return a.JobHistory(ids[0])
		},
	}
}

func jobStatusCmd() *cobra.Command {
	a := jobstatectl.New()
	statusArgs := jobstatectl.StatusArgs{}
	cmd := &cobra.Command{
		Use:   "set-status <jobId> <status>",
		Short: "Request a status change",
		Long: `Request a status change. The change goes through the transition guard unless
--override is given, in which case the status is written as is.`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIds(args[:1])
			if err != nil {
				return err
			}
			statusArgs.Status = args[1]
			return a.SetStatus(ids[0], statusArgs)
		},
	}
	cmd.Flags().StringVar(&statusArgs.MinorStatus, "minor", "", "minor status")
	cmd.Flags().StringVar(&statusArgs.ApplicationStatus, "application", "", "application status")
	cmd.Flags().StringVar(&statusArgs.Source, "source", "jobstatectl", "source recorded in the job history")
	cmd.Flags().BoolVar(&statusArgs.Override, "override", false, "skip the transition guard")
	return cmd
}

func jobRescheduleCmd() *cobra.Command {
	a := jobstatectl.New()
	var source string
	cmd := &cobra.Command{
		Use:   "reschedule <jobId>...",
		Short: "Send jobs back through the optimizers",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIds(args)
			if err != nil {
				return err
			}
			return a.Reschedule(ids, source)
		},
	}
	cmd.Flags().StringVar(&source, "source", "jobstatectl", "source recorded in the job history")
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "delete <jobId>...",
		Short: "Remove jobs and everything recorded about them",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIds(args)
			if err != nil {
				return err
			}
			return a.DeleteJobs(ids)
		},
	}
}

func jobKillCmd() *cobra.Command {
	a := jobstatectl.New()
	return &cobra.Command{
		Use:   "kill <jobId>",
		Short: "Ask the pilot running a job to kill it",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIds(args)
			if err != nil {
				return err
			}
			return a.SendCommand(ids[0], "Kill", "")
		},
	}
}
