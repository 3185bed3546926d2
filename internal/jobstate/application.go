package jobstate

import (
	"context"
	"database/sql"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-redis/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/jobstate/internal/common"
	"github.com/G-Research/jobstate/internal/common/database"
	"github.com/G-Research/jobstate/internal/common/health"
	"github.com/G-Research/jobstate/internal/common/logging"
	"github.com/G-Research/jobstate/internal/jobstate/admission"
	"github.com/G-Research/jobstate/internal/jobstate/configuration"
	"github.com/G-Research/jobstate/internal/jobstate/metrics"
	"github.com/G-Research/jobstate/internal/jobstate/platform"
	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/internal/jobstate/repository"
	"github.com/G-Research/jobstate/internal/jobstate/server"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
)

const (
	connectAttempts = 5
	pingTimeout     = 5 * time.Second
)

// Run starts the job state service and blocks until ctx is cancelled or a listener fails.
func Run(ctx context.Context, config configuration.JobStateConfiguration) error {
	if err := logging.AddPrometheusHook(); err != nil {
		log.WithError(err).Warn("Could not register log metrics")
	}

	pool, sqlDb, err := connect(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer sqlDb.Close()

	preparer := admission.NewPreparer(
		admission.Config{
			DefaultCPUTime:        config.DefaultCPUTime,
			DefaultOptimizerChain: config.OptimizerChain(),
		},
		platform.NewStaticResolver(config.PlatformCompatibility),
	)
	jobDb, err := repository.New(ctx, pool, repository.Config{
		MaxRescheduling:         config.MaxRescheduling,
		OptimizerChainCacheSize: config.OptimizerChainCacheSize,
	}, preparer, nil)
	if err != nil {
		return err
	}

	checker := health.NewMultiChecker(health.NewPingChecker("postgres", pingTimeout, jobDb.Ping))
	checker.Add(health.NewPingChecker("reporting", pingTimeout, sqlDb.PingContext))

	if config.Redis.Enabled() {
		client := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		defer client.Close()
		jobDb.SetSiteMaskPublisher(sitemask.NewRedisPublisher(client, config.SiteMaskPublishKey))
		checker.Add(health.NewPingChecker("redis", pingTimeout, func(context.Context) error {
			return client.Ping().Err()
		}))
		// Bring the mirror up to date with whatever changed while we were down.
		jobDb.PublishSiteMask(ctx)
	}

	reports := reporting.NewRepository(sqlDb, jobDb.ReportingColumns(), reporting.Config{
		Window:      config.ReportingWindow,
		FinalWindow: config.FinalReportingWindow,
	})
	var summaries reporting.Reporter = reports
	if config.ReportingCacheTTL > 0 {
		summaries = reporting.NewCachedReporter(reports, config.ReportingCacheTTL)
	}
	metrics.ExposeDataMetrics(summaries, jobDb)

	router := server.NewServer(jobDb, jobDb, summaries, reports, config.MaxBatchSize).Router()
	router.Handle("/health", health.NewHealthCheckHttpHandler(checker))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return common.ServeMetrics(ctx, config.MetricsPort)
	})
	g.Go(func() error {
		return common.ServeHttp(ctx, config.HttpPort, router)
	})

	log.Infof("Job state service started with %d job attributes", len(jobDb.Attributes()))
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Job state service stopped")
	return nil
}

// Migrate brings the schema up to date and returns.
func Migrate(ctx context.Context, config configuration.JobStateConfiguration) error {
	pool, err := openPool(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()
	return repository.Migrate(ctx, pool)
}

func connect(ctx context.Context, config configuration.JobStateConfiguration) (*pgxpool.Pool, *sql.DB, error) {
	var pool *pgxpool.Pool
	var sqlDb *sql.DB
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pool, err = openPool(ctx, config)
		return err
	})
	g.Go(func() error {
		return withRetry(ctx, "reporting postgres", func() error {
			db, err := database.OpenSqlDb(config.Postgres)
			if err != nil {
				return err
			}
			sqlDb = db
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		if pool != nil {
			pool.Close()
		}
		if sqlDb != nil {
			_ = sqlDb.Close()
		}
		return nil, nil, err
	}
	return pool, sqlDb, nil
}

func openPool(ctx context.Context, config configuration.JobStateConfiguration) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := withRetry(ctx, "postgres", func() error {
		p, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	return pool, err
}

func withRetry(ctx context.Context, target string, connect func() error) error {
	return retry.Do(
		connect,
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Connecting to %s failed (attempt %d of %d)", target, n+1, connectAttempts)
		}),
	)
}
