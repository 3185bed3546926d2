package repository

import (
	"context"

	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

type Description struct {
	Original     string `json:"original"`
	Resolved     string `json:"resolved"`
	Requirements string `json:"requirements"`
}

func (r *JobDB) writeDescription(ctx context.Context, q pgxtype.Querier, jobId int64, original string, resolved string, requirements string) error {
	encoded := make([]string, 3)
	for i, text := range []string{original, resolved, requirements} {
		e, err := r.codec.Encode(text)
		if err != nil {
			return err
		}
		encoded[i] = e
	}
	_, err := q.Exec(ctx, `
		INSERT INTO job_descriptions (job_id, original_text, resolved_text, requirements_text)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET
			original_text = EXCLUDED.original_text,
			resolved_text = EXCLUDED.resolved_text,
			requirements_text = EXCLUDED.requirements_text`,
		jobId, encoded[0], encoded[1], encoded[2])
	return err
}

// GetDescription returns the stored description texts of a job.
func (r *JobDB) GetDescription(ctx context.Context, jobId int64) (*Description, error) {
	var original, resolved, requirements string
	err := r.db.QueryRow(ctx,
		"SELECT original_text, resolved_text, requirements_text FROM job_descriptions WHERE job_id = $1",
		jobId).Scan(&original, &resolved, &requirements)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobNotFound(jobId)
	}
	if err != nil {
		return nil, wmserrors.NewStorageError("GetDescription", err)
	}

	d := &Description{}
	fields := []struct {
		name    string
		encoded string
		dst     *string
	}{
		{"original description", original, &d.Original},
		{"resolved description", resolved, &d.Resolved},
		{"job requirements", requirements, &d.Requirements},
	}
	for _, f := range fields {
		decoded, err := r.codec.Decode(f.encoded)
		if err != nil {
			return nil, errors.WithStack(&wmserrors.ErrDecoding{Field: f.name, Cause: err})
		}
		*f.dst = decoded
	}
	return d, nil
}

// GetJobDescription returns the original description when original is set, else the resolved one.
func (r *JobDB) GetJobDescription(ctx context.Context, jobId int64, original bool) (string, error) {
	d, err := r.GetDescription(ctx, jobId)
	if err != nil {
		return "", err
	}
	if original {
		return d.Original, nil
	}
	return d.Resolved, nil
}
