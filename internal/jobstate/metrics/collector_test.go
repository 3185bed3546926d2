package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

type fakeSources struct {
	rows    []reporting.SummaryRow
	entries []sitemask.Entry
	err     error
}

func (f *fakeSources) SummarySnapshot(_ context.Context) ([]reporting.SummaryRow, error) {
	return f.rows, f.err
}

func (f *fakeSources) GetSiteMaskSummary(_ context.Context) ([]sitemask.Entry, error) {
	return f.entries, nil
}

func TestJobStateCollector(t *testing.T) {
	sources := &fakeSources{
		rows: []reporting.SummaryRow{
			{Status: status.Running, Site: "LCG.CERN.ch", Count: 5},
			{Status: status.Waiting, Site: "ANY", Count: 2},
		},
		entries: []sitemask.Entry{
			{Site: "LCG.CERN.ch", Status: sitemask.Active},
			{Site: "LCG.RAL.uk", Status: sitemask.Banned},
		},
	}
	collector := NewJobStateCollector(sources, sources)

	expected := `
# HELP jobstate_jobs Number of jobs in the reporting window, by status and site
# TYPE jobstate_jobs gauge
jobstate_jobs{site="ANY",status="Waiting"} 2
jobstate_jobs{site="LCG.CERN.ch",status="Running"} 5
# HELP jobstate_site_mask 1 for the current mask status of a site
# TYPE jobstate_site_mask gauge
jobstate_site_mask{site="LCG.CERN.ch",status="Active"} 1
jobstate_site_mask{site="LCG.RAL.uk",status="Banned"} 1
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected)))
}

func TestJobStateCollector_SnapshotError(t *testing.T) {
	sources := &fakeSources{
		err:     errors.New("database down"),
		entries: []sitemask.Entry{{Site: "A", Status: sitemask.Active}},
	}
	collector := NewJobStateCollector(sources, sources)

	ch := make(chan prometheus.Metric, 10)
	collector.Collect(ch)
	close(ch)
	var metrics []prometheus.Metric
	for m := range ch {
		metrics = append(metrics, m)
	}
	require.Len(t, metrics, 2)
	assert.Equal(t, jobsDesc, metrics[0].Desc())
	assert.Equal(t, siteMaskDesc, metrics[1].Desc())
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(statusTransitions.WithLabelValues("Running", "Stalled"))
	RecordTransition(status.Running, status.Stalled)
	assert.Equal(t, before+1, testutil.ToFloat64(statusTransitions.WithLabelValues("Running", "Stalled")))

	before = testutil.ToFloat64(siteMaskChanges.WithLabelValues("Banned"))
	RecordSiteMaskChanges("Banned", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(siteMaskChanges.WithLabelValues("Banned")))

	before = testutil.ToFloat64(reschedules)
	RecordReschedule()
	assert.Equal(t, before+1, testutil.ToFloat64(reschedules))
}
