package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

// Command statuses
const (
	CommandReceived = "Received"
	CommandSent     = "Sent"
)

type Command struct {
	Command     string     `json:"command"`
	Arguments   string     `json:"arguments"`
	Status      string     `json:"status"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// EnqueueCommand queues a command for the pilot running the job.
func (r *JobDB) EnqueueCommand(ctx context.Context, jobId int64, command string, arguments string) error {
	if strings.TrimSpace(command) == "" {
		return errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "command", Value: command, Message: "command must not be blank"})
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO job_commands (job_id, command, arguments, status, received_at)
		VALUES ($1, $2, $3, $4, $5)`,
		jobId, command, arguments, CommandReceived, r.clock.Now())
	return storageError("EnqueueCommand", jobId, err)
}

// PollCommands returns the commands of a job that are in the given status, oldest first.
// Polling does not change them.
func (r *JobDB) PollCommands(ctx context.Context, jobId int64, commandStatus string) ([]Command, error) {
	if commandStatus == "" {
		commandStatus = CommandReceived
	}
	rows, err := r.db.Query(ctx, `
		SELECT command, arguments, status, received_at, delivered_at FROM job_commands
		WHERE job_id = $1 AND status = $2 ORDER BY received_at, serial`,
		jobId, commandStatus)
	if err != nil {
		return nil, wmserrors.NewStorageError("PollCommands", err)
	}
	defer rows.Close()
	commands := []Command{}
	for rows.Next() {
		c := Command{}
		if err := rows.Scan(&c.Command, &c.Arguments, &c.Status, &c.ReceivedAt, &c.DeliveredAt); err != nil {
			return nil, wmserrors.NewStorageError("PollCommands", err)
		}
		c.ReceivedAt = c.ReceivedAt.UTC()
		if c.DeliveredAt != nil {
			t := c.DeliveredAt.UTC()
			c.DeliveredAt = &t
		}
		commands = append(commands, c)
	}
	return commands, wmserrors.NewStorageError("PollCommands", rows.Err())
}

// MarkCommandDelivered moves every pending instance of a command to Sent and reports how many moved.
func (r *JobDB) MarkCommandDelivered(ctx context.Context, jobId int64, command string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE job_commands SET status = $3, delivered_at = $4
		WHERE job_id = $1 AND command = $2 AND status = $5`,
		jobId, command, CommandSent, r.clock.Now(), CommandReceived)
	if err != nil {
		return 0, wmserrors.NewStorageError("MarkCommandDelivered", err)
	}
	return tag.RowsAffected(), nil
}

// Heartbeat is the pilot entry point: it records the heartbeat and hands over the pending
// commands, marking them delivered in the same statement that reads them. Delivery is not
// acknowledged.
func (r *JobDB) Heartbeat(ctx context.Context, jobId int64, samples map[string]string, at time.Time) ([]Command, error) {
	if err := r.RecordHeartbeat(ctx, jobId, samples, at); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		UPDATE job_commands SET status = $2, delivered_at = $3
		WHERE job_id = $1 AND status = $4
		RETURNING command, arguments, status, received_at, delivered_at, serial`,
		jobId, CommandSent, r.clock.Now(), CommandReceived)
	if err != nil {
		return nil, wmserrors.NewStorageError("Heartbeat", err)
	}
	defer rows.Close()
	type delivered struct {
		Command
		serial int64
	}
	var result []delivered
	for rows.Next() {
		d := delivered{}
		if err := rows.Scan(&d.Command.Command, &d.Arguments, &d.Status, &d.ReceivedAt, &d.DeliveredAt, &d.serial); err != nil {
			return nil, wmserrors.NewStorageError("Heartbeat", err)
		}
		d.ReceivedAt = d.ReceivedAt.UTC()
		if d.DeliveredAt != nil {
			t := d.DeliveredAt.UTC()
			d.DeliveredAt = &t
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wmserrors.NewStorageError("Heartbeat", err)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].serial < result[j].serial })
	commands := make([]Command, len(result))
	for i, d := range result {
		commands[i] = d.Command
	}
	return commands, nil
}
