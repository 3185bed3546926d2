// Package repository is the postgres backed job state store. Every guarantee it gives
// other writers rests on single statements (upserts, conditional updates, CTEs); the few
// transactions group a caller's own rows and never serialise concurrent writers.
package repository

import (
	"context"
	"embed"
	"strconv"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype/pgxtype"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/compress"
	"github.com/G-Research/jobstate/internal/common/database"
	"github.com/G-Research/jobstate/internal/common/util"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/admission"
	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

//go:embed migrations/*.sql
var migrationFs embed.FS

func Migrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFs, "migrations")
}

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, db pgxtype.Querier) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	return database.UpdateDatabase(ctx, db, migrations)
}

type Config struct {
	MaxRescheduling         int
	OptimizerChainCacheSize int
}

// SiteMaskPublisher receives the full live mask after every change.
type SiteMaskPublisher interface {
	Publish(entries []sitemask.Entry) error
}

// JobDB is the job state store.
type JobDB struct {
	db       *pgxpool.Pool
	config   Config
	schema   *schema
	guard    status.Guard
	preparer *admission.Preparer
	codec    *compress.TextCodec
	clock    util.Clock
	// job id -> status.OptimizerChain. Chains never change for a given reschedule cycle.
	chains    *chainCache
	publisher SiteMaskPublisher
	// held while reading and publishing the mask
	publishLock sync.Mutex
}

// New introspects the jobs table and returns a store using it. The attribute set found
// here is fixed for the lifetime of the store.
func New(ctx context.Context, db *pgxpool.Pool, config Config, preparer *admission.Preparer, guard status.Guard) (*JobDB, error) {
	if db == nil {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	if preparer == nil {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "preparer",
			Value:   preparer,
			Message: "preparer must be non-nil",
		})
	}
	if config.MaxRescheduling < 0 {
		return nil, errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "MaxRescheduling",
			Value:   config.MaxRescheduling,
			Message: "MaxRescheduling must not be negative",
		})
	}
	if guard == nil {
		guard = status.NewStateMachine()
	}
	cacheSize := config.OptimizerChainCacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}
	chains, err := newChainCache(cacheSize)
	if err != nil {
		return nil, err
	}
	s, err := introspect(ctx, db)
	if err != nil {
		return nil, err
	}
	log.Infof("Job store initialised with %d job attributes", len(s.ordered))
	return &JobDB{
		db:       db,
		config:   config,
		schema:   s,
		guard:    guard,
		preparer: preparer,
		codec:    compress.NewZlibTextCodec(),
		clock:    &util.DefaultClock{},
		chains:   chains,
	}, nil
}

// SetSiteMaskPublisher mirrors the site mask to publisher after every change.
func (r *JobDB) SetSiteMaskPublisher(publisher SiteMaskPublisher) {
	r.publisher = publisher
}

// Attributes returns the names of the job attributes known to the store.
func (r *JobDB) Attributes() []string {
	return r.schema.names()
}

// ReportingColumns describes the job attributes to the read side.
func (r *JobDB) ReportingColumns() []reporting.Column {
	result := make([]reporting.Column, len(r.schema.ordered))
	for i, c := range r.schema.ordered {
		result[i] = reporting.Column{Attribute: c.attribute, Name: c.name, Timestamp: c.isTimestamp()}
	}
	return result
}

// Ping checks the connection to postgres.
func (r *JobDB) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// storageError wraps errors from postgres. A foreign key violation means a job that does
// not exist was referenced and is reported as not found.
func storageError(op string, jobId int64, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		if jobId == 0 {
			return errors.WithStack(&wmserrors.ErrNotFound{Type: "job", Message: "one or more jobs do not exist"})
		}
		return jobNotFound(jobId)
	}
	return wmserrors.NewStorageError(op, err)
}

func jobNotFound(jobId int64) error {
	return errors.WithStack(&wmserrors.ErrNotFound{Type: "job", Value: strconv.FormatInt(jobId, 10)})
}

// chainCache is a size bounded LRU safe for concurrent use.
type chainCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU
}

func (c *chainCache) get(jobId int64) (status.OptimizerChain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(jobId)
	if !ok {
		return nil, false
	}
	return v.(status.OptimizerChain), true
}

func (c *chainCache) add(jobId int64, chain status.OptimizerChain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(jobId, chain)
}

func (c *chainCache) remove(jobIds ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range jobIds {
		c.lru.Remove(id)
	}
}

func newChainCache(size int) (*chainCache, error) {
	lru, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &chainCache{lru: lru}, nil
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func itoa64(i int64) string {
	return strconv.FormatInt(i, 10)
}
