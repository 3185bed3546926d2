package repository

import (
	"context"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

// OptimizerSource is recorded in the status history for moves made by AdvanceOptimizer.
const OptimizerSource = "Optimizer"

// GetOptimizerChain returns the optimizer chain fixed for the job at submission.
func (r *JobDB) GetOptimizerChain(ctx context.Context, jobId int64) (status.OptimizerChain, error) {
	if chain, ok := r.chains.get(jobId); ok {
		return chain, nil
	}
	params, err := r.GetOptimizerParameters(ctx, jobId, OptimizerChainParameter)
	if err != nil {
		return nil, err
	}
	value, ok := params[OptimizerChainParameter]
	if !ok {
		exists, err := r.exists(ctx, jobId)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, jobNotFound(jobId)
		}
		return nil, errors.WithStack(&wmserrors.ErrNotFound{
			Type:    "optimizer chain",
			Value:   itoa64(jobId),
			Message: "job has no optimizer chain",
		})
	}
	chain := status.ParseOptimizerChain(value)
	r.chains.add(jobId, chain)
	return chain, nil
}

// AdvanceOptimizer hands the job to the optimizer after currentStage: the job moves to
// Checking with the next stage as MinorStatus. Advancing from the last stage, or from a
// stage not in the chain, is refused.
func (r *JobDB) AdvanceOptimizer(ctx context.Context, jobId int64, currentStage string) (string, error) {
	chain, err := r.GetOptimizerChain(ctx, jobId)
	if err != nil {
		return "", err
	}
	next, err := chain.Next(currentStage)
	if err != nil {
		var policyErr *wmserrors.ErrPolicy
		if errors.As(err, &policyErr) {
			policyErr.JobId = jobId
		}
		return "", err
	}
	_, err = r.RequestTransition(ctx, jobId, Change{
		Status:      status.Checking,
		MinorStatus: next,
		Source:      currentStage,
	})
	if err != nil {
		return "", err
	}
	return next, nil
}
