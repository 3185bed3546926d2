package status

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/wmserrors"
)

// Status is the major status of a job.
type Status string

const (
	Received   Status = "Received"
	Checking   Status = "Checking"
	Staging    Status = "Staging"
	Waiting    Status = "Waiting"
	Matched    Status = "Matched"
	Running    Status = "Running"
	Completing Status = "Completing"
	Completed  Status = "Completed"
	Done       Status = "Done"
	Failed     Status = "Failed"
	Stalled    Status = "Stalled"
	Killed     Status = "Killed"
	Deleted    Status = "Deleted"
)

// Minor statuses set by the store itself.
const (
	JobAcceptedMinorStatus      = "Job accepted"
	RescheduledMinorStatus      = "Job Rescheduled"
	MaxReschedulingMinorStatus  = "Maximum of reschedulings reached"
	UnknownApplicationStatus    = "Unknown"
	OSCompatibilityMinorPrefix  = "OS compatibility check failed"
	DescriptionErrorMinorPrefix = "Error in job description"
)

var All = []Status{
	Received,
	Checking,
	Staging,
	Waiting,
	Matched,
	Running,
	Completing,
	Completed,
	Done,
	Failed,
	Stalled,
	Killed,
	Deleted,
}

// FinalStates are the statuses reported on completion time rather than last update time.
var FinalStates = []Status{Done, Completed, Failed, Killed}

var byLowerName = func() map[string]Status {
	m := make(map[string]Status, len(All))
	for _, s := range All {
		m[strings.ToLower(string(s))] = s
	}
	return m
}()

// Parse returns the Status named by s, ignoring case.
func Parse(s string) (Status, error) {
	if st, ok := byLowerName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", errors.WithStack(&wmserrors.ErrInvalidArgument{
		Name:    "Status",
		Value:   s,
		Message: "not a known job status",
	})
}

func (s Status) IsValid() bool {
	_, ok := byLowerName[strings.ToLower(string(s))]
	return ok
}

// IsFinal reports whether s is one of FinalStates.
func (s Status) IsFinal() bool {
	for _, f := range FinalStates {
		if s == f {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// FinalStatesAsStrings is FinalStates in the representation stored in the database.
func FinalStatesAsStrings() []string {
	result := make([]string, len(FinalStates))
	for i, s := range FinalStates {
		result[i] = string(s)
	}
	return result
}
