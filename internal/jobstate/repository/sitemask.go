package repository

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/logging"
	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/metrics"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
)

// SetSiteStatus sets the mask status of sites and returns the sites whose status changed.
// Sites already in that status are left alone. The live table and its history are written
// by one statement, so every change has exactly one history row.
func (r *JobDB) SetSiteStatus(ctx context.Context, sites []string, siteStatus sitemask.Status, author string, comment string) ([]string, error) {
	if _, err := sitemask.ParseStatus(string(siteStatus)); err != nil {
		return nil, err
	}
	sites = util.UniqueNonBlank(sites)
	if len(sites) == 0 {
		return []string{}, nil
	}
	if author == "" {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "author", Value: author, Message: "author must be set"})
	}

	rows, err := r.db.Query(ctx, `
		WITH changed AS (
			INSERT INTO site_mask (site, status, last_update_time, author, comment)
			SELECT s, $2::text, $3::timestamptz, $4::text, $5::text FROM unnest($1::text[]) AS s
			ON CONFLICT (site) DO UPDATE SET
				status = EXCLUDED.status,
				last_update_time = EXCLUDED.last_update_time,
				author = EXCLUDED.author,
				comment = EXCLUDED.comment
			WHERE site_mask.status IS DISTINCT FROM EXCLUDED.status
			RETURNING site, status, last_update_time, author, comment
		)
		INSERT INTO site_mask_logging (site, status, update_time, author, comment)
		SELECT site, status, last_update_time, author, comment FROM changed
		RETURNING site`,
		sites, string(siteStatus), r.clock.Now(), author, comment)
	if err != nil {
		return nil, wmserrors.NewStorageError("SetSiteStatus", err)
	}
	defer rows.Close()
	changed := []string{}
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, wmserrors.NewStorageError("SetSiteStatus", err)
		}
		changed = append(changed, site)
	}
	if err := rows.Err(); err != nil {
		return nil, wmserrors.NewStorageError("SetSiteStatus", err)
	}
	rows.Close()

	if len(changed) > 0 {
		metrics.RecordSiteMaskChanges(string(siteStatus), len(changed))
		log.WithFields(log.Fields{"sites": changed, "author": author}).Infof("Site mask set to %s", siteStatus)
		r.PublishSiteMask(ctx)
	}
	return util.SortedKeys(util.StringListToSet(changed)), nil
}

func (r *JobDB) BanSites(ctx context.Context, sites []string, author string, comment string) ([]string, error) {
	return r.SetSiteStatus(ctx, sites, sitemask.Banned, author, comment)
}

func (r *JobDB) AllowSites(ctx context.Context, sites []string, author string, comment string) ([]string, error) {
	return r.SetSiteStatus(ctx, sites, sitemask.Active, author, comment)
}

func (r *JobDB) ProbeSites(ctx context.Context, sites []string, author string, comment string) ([]string, error) {
	return r.SetSiteStatus(ctx, sites, sitemask.Probing, author, comment)
}

// RemoveSites deletes sites from the live mask, making them unknown. Their history is kept.
func (r *JobDB) RemoveSites(ctx context.Context, sites []string) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM site_mask WHERE site = ANY($1)", util.UniqueNonBlank(sites))
	if err != nil {
		return 0, wmserrors.NewStorageError("RemoveSites", err)
	}
	if tag.RowsAffected() > 0 {
		r.PublishSiteMask(ctx)
	}
	return tag.RowsAffected(), nil
}

// GetMask returns the live mask entries matching filter, sorted by site.
func (r *JobDB) GetMask(ctx context.Context, filter sitemask.Filter) ([]sitemask.Entry, error) {
	sql := "SELECT site, status, last_update_time, author, comment FROM site_mask"
	var args []interface{}
	if filter != sitemask.All {
		sql += " WHERE status = $1"
		args = append(args, string(filter))
	}
	sql += " ORDER BY site"
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetMask", err)
	}
	defer rows.Close()
	entries := []sitemask.Entry{}
	for rows.Next() {
		e := sitemask.Entry{}
		if err := rows.Scan(&e.Site, &e.Status, &e.LastUpdateTime, &e.Author, &e.Comment); err != nil {
			return nil, wmserrors.NewStorageError("GetMask", err)
		}
		e.LastUpdateTime = e.LastUpdateTime.UTC()
		entries = append(entries, e)
	}
	return entries, wmserrors.NewStorageError("GetMask", rows.Err())
}

// GetSiteMaskSummary returns the whole live mask.
func (r *JobDB) GetSiteMaskSummary(ctx context.Context) ([]sitemask.Entry, error) {
	return r.GetMask(ctx, sitemask.All)
}

// GetSiteStatus returns the status of one site. A site not in the mask is an unknown site error.
func (r *JobDB) GetSiteStatus(ctx context.Context, site string) (sitemask.Status, error) {
	statuses, err := r.GetSitesStatus(ctx, []string{site})
	if err != nil {
		return "", err
	}
	s, ok := statuses[site]
	if !ok {
		return "", sitemask.UnknownSite(site)
	}
	return s, nil
}

// GetSitesStatus returns the status of every known site among sites. Unknown sites are absent.
func (r *JobDB) GetSitesStatus(ctx context.Context, sites []string) (map[string]sitemask.Status, error) {
	rows, err := r.db.Query(ctx, "SELECT site, status FROM site_mask WHERE site = ANY($1)", sites)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetSitesStatus", err)
	}
	defer rows.Close()
	result := make(map[string]sitemask.Status, len(sites))
	for rows.Next() {
		var site string
		var s sitemask.Status
		if err := rows.Scan(&site, &s); err != nil {
			return nil, wmserrors.NewStorageError("GetSitesStatus", err)
		}
		result[site] = s
	}
	return result, wmserrors.NewStorageError("GetSitesStatus", rows.Err())
}

// PartitionSites splits sites into Active, Banned and everything else.
func (r *JobDB) PartitionSites(ctx context.Context, sites []string) (sitemask.Partition, error) {
	known, err := r.GetSitesStatus(ctx, sites)
	if err != nil {
		return sitemask.Partition{}, err
	}
	return sitemask.PartitionSites(sites, known), nil
}

// GetSiteMaskLogging returns the history of the given sites, or of all sites when none are
// given, keyed by site and oldest first.
func (r *JobDB) GetSiteMaskLogging(ctx context.Context, sites []string) (map[string][]sitemask.LogEntry, error) {
	sql := "SELECT site, status, update_time, author, comment FROM site_mask_logging"
	var args []interface{}
	if len(sites) > 0 {
		sql += " WHERE site = ANY($1)"
		args = append(args, sites)
	}
	sql += " ORDER BY site, update_time, serial"
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetSiteMaskLogging", err)
	}
	defer rows.Close()
	result := map[string][]sitemask.LogEntry{}
	for rows.Next() {
		e := sitemask.LogEntry{}
		if err := rows.Scan(&e.Site, &e.Status, &e.UpdateTime, &e.Author, &e.Comment); err != nil {
			return nil, wmserrors.NewStorageError("GetSiteMaskLogging", err)
		}
		e.UpdateTime = e.UpdateTime.UTC()
		result[e.Site] = append(result[e.Site], e)
	}
	return result, wmserrors.NewStorageError("GetSiteMaskLogging", rows.Err())
}

// PublishSiteMask pushes the live mask to the mirror. The mirror is best effort: failures
// are logged and the next change publishes the full mask again.
//
// Publishes from one store are serialised and each reads the mask after taking the lock,
// so the last publish always carries every change committed before it. Stores in
// different processes are not coordinated: their publishes can still land out of order,
// leaving the mirror behind until the next change.
func (r *JobDB) PublishSiteMask(ctx context.Context) {
	if r.publisher == nil {
		return
	}
	r.publishLock.Lock()
	defer r.publishLock.Unlock()
	entries, err := r.GetMask(ctx, sitemask.All)
	if err == nil {
		err = r.publisher.Publish(entries)
	}
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Warn("Failed to publish site mask")
	}
}
