package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
)

const collectTimeout = 10 * time.Second

type SnapshotSource interface {
	SummarySnapshot(ctx context.Context) ([]reporting.SummaryRow, error)
}

type SiteMaskSource interface {
	GetSiteMaskSummary(ctx context.Context) ([]sitemask.Entry, error)
}

func ExposeDataMetrics(snapshots SnapshotSource, mask SiteMaskSource) *JobStateCollector {
	collector := NewJobStateCollector(snapshots, mask)
	prometheus.MustRegister(collector)
	return collector
}

// JobStateCollector reports the reporting snapshot and the site mask on every scrape.
type JobStateCollector struct {
	snapshots SnapshotSource
	mask      SiteMaskSource
}

func NewJobStateCollector(snapshots SnapshotSource, mask SiteMaskSource) *JobStateCollector {
	return &JobStateCollector{snapshots: snapshots, mask: mask}
}

var jobsDesc = prometheus.NewDesc(
	MetricPrefix+"jobs",
	"Number of jobs in the reporting window, by status and site",
	[]string{"status", "site"},
	nil,
)

var siteMaskDesc = prometheus.NewDesc(
	MetricPrefix+"site_mask",
	"1 for the current mask status of a site",
	[]string{"site", "status"},
	nil,
)

func (c *JobStateCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- jobsDesc
	desc <- siteMaskDesc
}

func (c *JobStateCollector) Collect(metrics chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	rows, err := c.snapshots.SummarySnapshot(ctx)
	if err != nil {
		log.Errorf("Error while getting job metrics %s", err)
		metrics <- prometheus.NewInvalidMetric(jobsDesc, err)
	} else {
		for _, row := range rows {
			metrics <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue, float64(row.Count), string(row.Status), row.Site)
		}
	}

	entries, err := c.mask.GetSiteMaskSummary(ctx)
	if err != nil {
		log.Errorf("Error while getting site mask metrics %s", err)
		metrics <- prometheus.NewInvalidMetric(siteMaskDesc, err)
		return
	}
	for _, e := range entries {
		metrics <- prometheus.MustNewConstMetric(siteMaskDesc, prometheus.GaugeValue, 1, e.Site, string(e.Status))
	}
}
