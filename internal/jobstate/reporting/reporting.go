package reporting

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

var (
	jobsTable = goqu.T("jobs")

	job_status         = goqu.I("jobs.status")
	job_site           = goqu.I("jobs.site")
	job_jobId          = goqu.I("jobs.job_id")
	job_lastUpdateTime = goqu.I("jobs.last_update_time")
	job_endExecTime    = goqu.I("jobs.end_exec_time")
)

// Column describes a job attribute stored in the jobs table.
type Column struct {
	Attribute string
	Name      string
	Timestamp bool
}

type Config struct {
	// Non-final statuses count while their LastUpdateTime is within Window.
	Window time.Duration
	// Final statuses count while their EndExecTime is within FinalWindow.
	FinalWindow time.Duration
}

// Filter restricts queries to jobs whose attribute takes one of the listed values.
// An attribute with no values places no restriction.
type Filter map[string][]string

type SummaryRow struct {
	Status status.Status `db:"status" json:"status"`
	Site   string        `db:"site" json:"site"`
	Count  int64         `db:"count" json:"count"`
}

type Counter struct {
	Values map[string]string `json:"values"`
	Count  int64             `json:"count"`
}

// Selection picks jobs for SelectJobs. Newer and Older bound LastUpdateTime.
type Selection struct {
	Filter     Filter
	Newer      *time.Time
	Older      *time.Time
	OrderBy    string
	Descending bool
	Limit      uint
}

// Repository answers aggregate questions about jobs. It only reads.
type Repository struct {
	goquDb  *goqu.Database
	columns map[string]Column
	config  Config
	clock   util.Clock
}

func NewRepository(db *sql.DB, columns []Column, config Config) *Repository {
	byAttribute := make(map[string]Column, len(columns))
	for _, c := range columns {
		byAttribute[strings.ToLower(c.Attribute)] = c
	}
	return &Repository{
		goquDb:  goqu.New("postgres", db),
		columns: byAttribute,
		config:  config,
		clock:   &util.DefaultClock{},
	}
}

// SummarySnapshot counts jobs per status and site. Non-final statuses are counted on
// LastUpdateTime within Window and final statuses on EndExecTime within FinalWindow.
func (r *Repository) SummarySnapshot(ctx context.Context) ([]SummaryRow, error) {
	now := r.clock.Now()
	finals := status.FinalStatesAsStrings()
	ds := r.goquDb.
		From(jobsTable).
		Select(job_status.As("status"), job_site.As("site"), goqu.COUNT("*").As("count")).
		Where(goqu.Or(
			goqu.And(job_status.NotIn(finals), job_lastUpdateTime.Gte(now.Add(-r.config.Window))),
			goqu.And(job_status.In(finals), job_endExecTime.Gte(now.Add(-r.config.FinalWindow))),
		)).
		GroupBy(job_status, job_site).
		Order(job_status.Asc(), job_site.Asc())

	rows := []SummaryRow{}
	if err := ds.Prepared(true).ScanStructsContext(ctx, &rows); err != nil {
		return nil, wmserrors.NewStorageError("SummarySnapshot", err)
	}
	return rows, nil
}

// GetSiteSummary counts jobs per site and status within the snapshot windows.
func (r *Repository) GetSiteSummary(ctx context.Context) (map[string]map[status.Status]int64, error) {
	rows, err := r.SummarySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return SiteSummary(rows), nil
}

// SiteSummary regroups a snapshot by site.
func SiteSummary(rows []SummaryRow) map[string]map[status.Status]int64 {
	result := map[string]map[status.Status]int64{}
	for _, row := range rows {
		if result[row.Site] == nil {
			result[row.Site] = map[status.Status]int64{}
		}
		result[row.Site][row.Status] += row.Count
	}
	return result
}

// GetCounters counts jobs grouped by the given attributes. Values are returned in the same
// text form used for attributes elsewhere. newer, if set, bounds LastUpdateTime from below.
func (r *Repository) GetCounters(ctx context.Context, groupBy []string, filter Filter, newer *time.Time) ([]Counter, error) {
	if len(groupBy) == 0 {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "groupBy", Value: groupBy, Message: "at least one attribute is needed"})
	}
	columns := make([]Column, len(groupBy))
	selected := make([]interface{}, 0, len(groupBy)+1)
	grouped := make([]interface{}, 0, len(groupBy))
	for i, attribute := range groupBy {
		c, err := r.column(attribute)
		if err != nil {
			return nil, err
		}
		columns[i] = c
		alias := "v" + strconv.Itoa(i)
		selected = append(selected, textExpression(c).As(alias))
		grouped = append(grouped, goqu.I(alias))
	}
	selected = append(selected, goqu.COUNT("*").As("count"))

	where, err := r.conditions(filter, newer, nil)
	if err != nil {
		return nil, err
	}
	ds := r.goquDb.
		From(jobsTable).
		Select(selected...).
		Where(where...).
		GroupBy(grouped...).
		Order(goqu.I("count").Desc())

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := r.goquDb.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wmserrors.NewStorageError("GetCounters", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.WithError(err).Warn("Failed to close rows")
		}
	}()

	counters := []Counter{}
	for rows.Next() {
		values := make([]string, len(columns))
		var count int64
		dest := make([]interface{}, 0, len(columns)+1)
		for i := range values {
			dest = append(dest, &values[i])
		}
		dest = append(dest, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, wmserrors.NewStorageError("GetCounters", err)
		}
		counter := Counter{Values: make(map[string]string, len(columns)), Count: count}
		for i, c := range columns {
			counter.Values[c.Attribute] = values[i]
		}
		counters = append(counters, counter)
	}
	return counters, wmserrors.NewStorageError("GetCounters", rows.Err())
}

// GetDistinctValues returns the distinct values an attribute takes among the filtered jobs, sorted.
func (r *Repository) GetDistinctValues(ctx context.Context, attribute string, filter Filter) ([]string, error) {
	c, err := r.column(attribute)
	if err != nil {
		return nil, err
	}
	where, err := r.conditions(filter, nil, nil)
	if err != nil {
		return nil, err
	}
	ds := r.goquDb.
		From(jobsTable).
		Select(textExpression(c).As("value")).
		Distinct().
		Where(where...).
		Order(goqu.I("value").Asc())

	values := []string{}
	if err := ds.Prepared(true).ScanValsContext(ctx, &values); err != nil {
		return nil, wmserrors.NewStorageError("GetDistinctValues", err)
	}
	return values, nil
}

// SelectJobs returns the ids of the jobs matching selection. Without an order the
// ids are sorted ascending.
func (r *Repository) SelectJobs(ctx context.Context, selection Selection) ([]int64, error) {
	where, err := r.conditions(selection.Filter, selection.Newer, selection.Older)
	if err != nil {
		return nil, err
	}
	order := job_jobId.Asc()
	if selection.OrderBy != "" {
		c, err := r.column(selection.OrderBy)
		if err != nil {
			return nil, err
		}
		if selection.Descending {
			order = goqu.I("jobs." + c.Name).Desc()
		} else {
			order = goqu.I("jobs." + c.Name).Asc()
		}
	}
	ds := r.goquDb.
		From(jobsTable).
		Select(job_jobId).
		Where(where...).
		Order(order, job_jobId.Asc())
	if selection.Limit > 0 {
		ds = ds.Limit(selection.Limit)
	}

	ids := []int64{}
	if err := ds.Prepared(true).ScanValsContext(ctx, &ids); err != nil {
		return nil, wmserrors.NewStorageError("SelectJobs", err)
	}
	return ids, nil
}

func (r *Repository) column(attribute string) (Column, error) {
	c, ok := r.columns[strings.ToLower(strings.TrimSpace(attribute))]
	if !ok {
		return Column{}, errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "attribute",
			Value:   attribute,
			Message: "not a job attribute",
		})
	}
	return c, nil
}

func (r *Repository) conditions(filter Filter, newer *time.Time, older *time.Time) ([]exp.Expression, error) {
	attributes := make([]string, 0, len(filter))
	for attribute := range filter {
		attributes = append(attributes, attribute)
	}
	sort.Strings(attributes)

	var where []exp.Expression
	for _, attribute := range attributes {
		values := filter[attribute]
		if len(values) == 0 {
			continue
		}
		c, err := r.column(attribute)
		if err != nil {
			return nil, err
		}
		if c.Timestamp {
			where = append(where, textExpression(c).In(values))
		} else {
			where = append(where, goqu.I("jobs."+c.Name).In(values))
		}
	}
	if newer != nil {
		where = append(where, job_lastUpdateTime.Gte(newer.UTC()))
	}
	if older != nil {
		where = append(where, job_lastUpdateTime.Lt(older.UTC()))
	}
	return where, nil
}

// textExpression renders a column the way attributes are read: timestamps as
// "YYYY-MM-DD HH:MM:SS" in UTC and NULL as ''.
func textExpression(c Column) exp.LiteralExpression {
	if c.Timestamp {
		return goqu.L("COALESCE(to_char(? AT TIME ZONE 'UTC', 'YYYY-MM-DD HH24:MI:SS'), '')", goqu.I("jobs."+c.Name))
	}
	return goqu.L("COALESCE(?::text, '')", goqu.I("jobs."+c.Name))
}
