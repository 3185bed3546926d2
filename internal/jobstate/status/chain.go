package status

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

const chainSeparator = ","

// OptimizerChain is the ordered list of optimizer stages a job passes through.
// It is fixed at submission time.
type OptimizerChain []string

// ParseOptimizerChain reads the comma separated form used at storage boundaries.
func ParseOptimizerChain(s string) OptimizerChain {
	var chain OptimizerChain
	for _, stage := range strings.Split(s, chainSeparator) {
		if stage = strings.TrimSpace(stage); stage != "" {
			chain = append(chain, stage)
		}
	}
	return chain
}

func (c OptimizerChain) String() string {
	return strings.Join(c, chainSeparator)
}

func (c OptimizerChain) First() (string, bool) {
	if len(c) == 0 {
		return "", false
	}
	return c[0], true
}

// Next returns the stage following current. Asking for the stage after an unknown stage or
// after the last stage is refused.
func (c OptimizerChain) Next(current string) (string, error) {
	for i, stage := range c {
		if stage != current {
			continue
		}
		if i == len(c)-1 {
			return "", errors.WithStack(&wmserrors.ErrPolicy{
				Rule:    "OptimizerChain",
				Message: "stage " + current + " is the last optimizer in chain " + c.String(),
			})
		}
		return c[i+1], nil
	}
	return "", errors.WithStack(&wmserrors.ErrPolicy{
		Rule:    "OptimizerChain",
		Message: "stage " + current + " is not part of chain " + c.String(),
	})
}
