package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
)

type fakePublisher struct {
	published [][]sitemask.Entry
	err       error
}

func (p *fakePublisher) Publish(entries []sitemask.Entry) error {
	p.published = append(p.published, entries)
	return p.err
}

func TestSetSiteStatus_LogsOnlyChanges(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		changed, err := r.AllowSites(ctx, []string{"LCG.CERN.ch", "LCG.RAL.uk", "LCG.CERN.ch", ""}, "admin", "initial")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"LCG.CERN.ch", "LCG.RAL.uk"}, changed)

		clock.Advance(time.Minute)
		changed, err = r.AllowSites(ctx, []string{"LCG.CERN.ch"}, "admin", "again")
		require.NoError(t, err)
		assert.Empty(t, changed)

		clock.Advance(time.Minute)
		changed, err = r.BanSites(ctx, []string{"LCG.CERN.ch"}, "shifter", "downtime")
		require.NoError(t, err)
		assert.Equal(t, []string{"LCG.CERN.ch"}, changed)

		history, err := r.GetSiteMaskLogging(ctx, []string{"LCG.CERN.ch"})
		require.NoError(t, err)
		assert.Equal(t, map[string][]sitemask.LogEntry{
			"LCG.CERN.ch": {
				{Site: "LCG.CERN.ch", Status: sitemask.Active, UpdateTime: baseTime, Author: "admin", Comment: "initial"},
				{Site: "LCG.CERN.ch", Status: sitemask.Banned, UpdateTime: baseTime.Add(2 * time.Minute), Author: "shifter", Comment: "downtime"},
			},
		}, history)

		all, err := r.GetSiteMaskLogging(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		entry, err := r.GetMask(ctx, sitemask.Filter(sitemask.Banned))
		require.NoError(t, err)
		assert.Equal(t, []sitemask.Entry{{
			Site:           "LCG.CERN.ch",
			Status:         sitemask.Banned,
			LastUpdateTime: baseTime.Add(2 * time.Minute),
			Author:         "shifter",
			Comment:        "downtime",
		}}, entry)
	})
}

func TestSetSiteStatus_Validation(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		_, err := r.SetSiteStatus(ctx, []string{"LCG.CERN.ch"}, "Closed", "admin", "")
		var invalid *wmserrors.ErrInvalidArgument
		assert.ErrorAs(t, err, &invalid)

		_, err = r.BanSites(ctx, []string{"LCG.CERN.ch"}, "", "")
		assert.ErrorAs(t, err, &invalid)

		changed, err := r.BanSites(ctx, nil, "admin", "")
		require.NoError(t, err)
		assert.Empty(t, changed)
	})
}

func TestGetSiteStatus(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		_, err := r.ProbeSites(ctx, []string{"LCG.NEW.org"}, "admin", "")
		require.NoError(t, err)

		s, err := r.GetSiteStatus(ctx, "LCG.NEW.org")
		require.NoError(t, err)
		assert.Equal(t, sitemask.Probing, s)

		_, err = r.GetSiteStatus(ctx, "LCG.NOWHERE.org")
		assert.True(t, sitemask.IsUnknownSite(err))
	})
}

func TestPartitionSites(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		_, err := r.AllowSites(ctx, []string{"A", "B"}, "admin", "")
		require.NoError(t, err)
		_, err = r.BanSites(ctx, []string{"C"}, "admin", "")
		require.NoError(t, err)
		_, err = r.ProbeSites(ctx, []string{"D"}, "admin", "")
		require.NoError(t, err)

		partition, err := r.PartitionSites(ctx, []string{"B", "C", "D", "E", "A", "B"})
		require.NoError(t, err)
		assert.Equal(t, sitemask.Partition{
			Active:  []string{"A", "B"},
			Banned:  []string{"C"},
			Invalid: []string{"D", "E"},
		}, partition)
	})
}

func TestRemoveSites(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		_, err := r.AllowSites(ctx, []string{"A", "B"}, "admin", "")
		require.NoError(t, err)

		n, err := r.RemoveSites(ctx, []string{"A", "Z"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		mask, err := r.GetSiteMaskSummary(ctx)
		require.NoError(t, err)
		require.Len(t, mask, 1)
		assert.Equal(t, "B", mask[0].Site)
	})
}

func TestSiteMask_Publishes(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		publisher := &fakePublisher{}
		r.SetSiteMaskPublisher(publisher)

		_, err := r.AllowSites(ctx, []string{"A"}, "admin", "")
		require.NoError(t, err)
		_, err = r.AllowSites(ctx, []string{"A"}, "admin", "")
		require.NoError(t, err)
		require.Len(t, publisher.published, 1)
		assert.Equal(t, "A", publisher.published[0][0].Site)

		publisher.err = errors.New("mirror down")
		changed, err := r.BanSites(ctx, []string{"A"}, "admin", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, changed)
		assert.Len(t, publisher.published, 2)
	})
}

func TestSiteMask_ConcurrentChangesPublishLatestMask(t *testing.T) {
	withJobDB(t, nil, func(ctx context.Context, r *JobDB, clock *util.DummyClock) {
		publisher := &fakePublisher{}
		r.SetSiteMaskPublisher(publisher)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 20; i++ {
			site := "LCG.Site" + itoa(i) + ".org"
			banned := i%2 == 0
			g.Go(func() error {
				if banned {
					_, err := r.BanSites(gctx, []string{site}, "admin", "")
					return err
				}
				_, err := r.AllowSites(gctx, []string{site}, "admin", "")
				return err
			})
		}
		require.NoError(t, g.Wait())

		live, err := r.GetMask(ctx, sitemask.All)
		require.NoError(t, err)
		require.Len(t, live, 20)
		require.Len(t, publisher.published, 20)
		assert.Equal(t, live, publisher.published[len(publisher.published)-1])
	})
}
