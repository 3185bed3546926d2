package jobstatectl

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/pkg/api"
	"github.com/G-Research/jobstate/pkg/client"
)

const timeFormat = "2006-01-02 15:04:05"

type StatusArgs struct {
	Status            string
	MinorStatus       string
	ApplicationStatus string
	Source            string
	Override          bool
}

func (a *App) GetJob(jobId int64) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		job, err := c.GetJob(ctx, jobId)
		if err != nil {
			return errors.Wrapf(err, "error getting job %d", jobId)
		}
		w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
		fmt.Fprintf(w, "JobID:\t%d\n", job.JobID)
		fmt.Fprintf(w, "Status:\t%s\n", job.Status)
		fmt.Fprintf(w, "MinorStatus:\t%s\n", job.MinorStatus)
		fmt.Fprintf(w, "ApplicationStatus:\t%s\n", job.ApplicationStatus)
		fmt.Fprintf(w, "Owner:\t%s (%s)\n", job.Owner, job.OwnerGroup)
		fmt.Fprintf(w, "Site:\t%s\n", job.Site)
		fmt.Fprintf(w, "JobName:\t%s\n", job.JobName)
		return w.Flush()
	})
}

// JobHistory prints the status log of a job, oldest first.
func (a *App) JobHistory(jobId int64) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		records, err := c.GetLoggingInfo(ctx, jobId)
		if err != nil {
			return errors.Wrapf(err, "error getting history of job %d", jobId)
		}
		w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTATUS\tMINOR STATUS\tAPPLICATION STATUS\tSOURCE")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.StatusTime.UTC().Format(timeFormat), r.Status, r.MinorStatus, r.ApplicationStatus, r.Source)
		}
		return w.Flush()
	})
}

func (a *App) SetStatus(jobId int64, args StatusArgs) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		stored, err := c.ChangeStatus(ctx, jobId, api.StatusChangeRequest{
			Status:            args.Status,
			MinorStatus:       args.MinorStatus,
			ApplicationStatus: args.ApplicationStatus,
			Source:            args.Source,
			Override:          args.Override,
		})
		if err != nil {
			return errors.Wrapf(err, "error setting status of job %d to %s", jobId, args.Status)
		}
		if string(stored) != args.Status {
			fmt.Fprintf(a.Out, "Job %d moved to %s instead of %s\n", jobId, stored, args.Status)
			return nil
		}
		fmt.Fprintf(a.Out, "Job %d is now %s\n", jobId, stored)
		return nil
	})
}

func (a *App) Reschedule(jobIds []int64, source string) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		outcomes, err := c.RescheduleJobs(ctx, jobIds, source)
		if err != nil {
			return errors.Wrap(err, "error rescheduling jobs")
		}
		ids := make([]int64, 0, len(outcomes))
		for id := range outcomes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		failed := 0
		for _, id := range ids {
			outcome := outcomes[id]
			if outcome.Error != "" {
				failed++
				fmt.Fprintf(a.Out, "Job %d not rescheduled: %s\n", id, outcome.Error)
				continue
			}
			fmt.Fprintf(a.Out, "Job %d rescheduled (cycle %d), now %s %s\n",
				id, outcome.Result.RescheduleCounter, outcome.Result.Status, outcome.Result.MinorStatus)
		}
		if failed > 0 {
			return errors.Errorf("%d of %d jobs could not be rescheduled", failed, len(ids))
		}
		return nil
	})
}

func (a *App) DeleteJobs(jobIds []int64) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		count, err := c.DeleteJobs(ctx, jobIds)
		if err != nil {
			return errors.Wrap(err, "error deleting jobs")
		}
		fmt.Fprintf(a.Out, "Deleted %d of %d jobs\n", count, len(jobIds))
		return nil
	})
}

// SendCommand queues a command for the pilot running the job.
func (a *App) SendCommand(jobId int64, command string, arguments string) error {
	return a.withClient(func(ctx context.Context, c *client.Client) error {
		if err := c.EnqueueCommand(ctx, jobId, command, arguments); err != nil {
			return errors.Wrapf(err, "error sending %s to job %d", command, jobId)
		}
		fmt.Fprintf(a.Out, "Queued %s for job %d\n", command, jobId)
		return nil
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeFormat)
}
