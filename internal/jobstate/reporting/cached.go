package reporting

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/G-Research/jobstate/internal/jobstate/status"
)

const snapshotKey = "snapshot"

type Reporter interface {
	SummarySnapshot(ctx context.Context) ([]SummaryRow, error)
	GetSiteSummary(ctx context.Context) (map[string]map[status.Status]int64, error)
}

// CachedReporter serves the snapshot from memory for up to ttl after it was computed.
// The site summary is derived from the same cached snapshot.
type CachedReporter struct {
	reporter Reporter
	cache    *cache.Cache
}

func NewCachedReporter(reporter Reporter, ttl time.Duration) *CachedReporter {
	return &CachedReporter{
		reporter: reporter,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (c *CachedReporter) SummarySnapshot(ctx context.Context) ([]SummaryRow, error) {
	if cached, ok := c.cache.Get(snapshotKey); ok {
		return cached.([]SummaryRow), nil
	}
	rows, err := c.reporter.SummarySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(snapshotKey, rows)
	return rows, nil
}

func (c *CachedReporter) GetSiteSummary(ctx context.Context) (map[string]map[status.Status]int64, error) {
	rows, err := c.SummarySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return SiteSummary(rows), nil
}

// Invalidate drops the cached snapshot.
func (c *CachedReporter) Invalidate() {
	c.cache.Delete(snapshotKey)
}
