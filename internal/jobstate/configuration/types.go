package configuration

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/G-Research/jobstate/internal/common/config"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

type JobStateConfiguration struct {
	HttpPort    uint16
	MetricsPort uint16

	Postgres config.PostgresConfig
	// Optional. When addresses are given the site mask is mirrored into redis.
	Redis config.RedisConfig

	MaxRescheduling int
	// Seconds of CPU time given to jobs that do not ask for any
	DefaultCPUTime        int64
	DefaultOptimizerChain []string
	// Requested platform -> platforms able to run it
	PlatformCompatibility map[string][]string

	// Non-final statuses are reported while their last update is within ReportingWindow;
	// final statuses while their end of execution is within FinalReportingWindow.
	ReportingWindow      time.Duration
	FinalReportingWindow time.Duration
	ReportingCacheTTL    time.Duration

	OptimizerChainCacheSize int
	// Redis hash holding the mirrored site mask
	SiteMaskPublishKey string
	// Bound on the number of ids accepted by a single bulk request
	MaxBatchSize int
}

const (
	DefaultMaxRescheduling         = 3
	DefaultCPUTime                 = 86400
	DefaultOptimizerChainCacheSize = 10000
	DefaultSiteMaskPublishKey      = "SiteMask"
	DefaultMaxBatchSize            = 1000
)

func (c JobStateConfiguration) OptimizerChain() status.OptimizerChain {
	return status.OptimizerChain(c.DefaultOptimizerChain)
}

// CheckConfig fills in defaults and reports every invalid setting.
func CheckConfig(c *JobStateConfiguration) error {
	var result *multierror.Error

	if c.MaxRescheduling == 0 {
		c.MaxRescheduling = DefaultMaxRescheduling
	}
	if c.MaxRescheduling < 0 {
		result = multierror.Append(result, fmt.Errorf("MaxRescheduling must not be negative, got %d", c.MaxRescheduling))
	}
	if c.DefaultCPUTime == 0 {
		c.DefaultCPUTime = DefaultCPUTime
	}
	if c.DefaultCPUTime < 0 {
		result = multierror.Append(result, fmt.Errorf("DefaultCPUTime must be positive, got %d", c.DefaultCPUTime))
	}
	if c.OptimizerChainCacheSize == 0 {
		c.OptimizerChainCacheSize = DefaultOptimizerChainCacheSize
	}
	if c.OptimizerChainCacheSize < 0 {
		result = multierror.Append(result, fmt.Errorf("OptimizerChainCacheSize must be positive, got %d", c.OptimizerChainCacheSize))
	}
	if c.SiteMaskPublishKey == "" {
		c.SiteMaskPublishKey = DefaultSiteMaskPublishKey
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}

	chain := status.ParseOptimizerChain(c.OptimizerChain().String())
	if len(chain) == 0 {
		result = multierror.Append(result, fmt.Errorf("DefaultOptimizerChain must name at least one optimizer"))
	}
	c.DefaultOptimizerChain = chain

	if c.ReportingWindow <= 0 {
		result = multierror.Append(result, fmt.Errorf("ReportingWindow must be positive, got %s", c.ReportingWindow))
	}
	if c.FinalReportingWindow <= 0 {
		result = multierror.Append(result, fmt.Errorf("FinalReportingWindow must be positive, got %s", c.FinalReportingWindow))
	}
	if c.ReportingCacheTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("ReportingCacheTTL must not be negative, got %s", c.ReportingCacheTTL))
	}
	if len(c.Postgres.Connection) == 0 {
		result = multierror.Append(result, fmt.Errorf("Postgres.Connection must be set"))
	}
	if c.HttpPort == 0 {
		result = multierror.Append(result, fmt.Errorf("HttpPort must be set"))
	}
	return result.ErrorOrNil()
}
