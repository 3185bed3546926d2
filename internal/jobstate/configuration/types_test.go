package configuration

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/jobstate/internal/common"
	"github.com/G-Research/jobstate/internal/common/config"
	"github.com/G-Research/jobstate/internal/jobstate/status"
)

func validConfig() JobStateConfiguration {
	return JobStateConfiguration{
		HttpPort:              8080,
		Postgres:              config.PostgresConfig{Connection: map[string]string{"host": "localhost"}},
		DefaultOptimizerChain: []string{"JobPath", " JobSanity ", ""},
		ReportingWindow:       time.Hour,
		FinalReportingWindow:  24 * time.Hour,
	}
}

func TestCheckConfig_Defaults(t *testing.T) {
	c := validConfig()
	require.NoError(t, CheckConfig(&c))

	assert.Equal(t, DefaultMaxRescheduling, c.MaxRescheduling)
	assert.Equal(t, int64(DefaultCPUTime), c.DefaultCPUTime)
	assert.Equal(t, DefaultOptimizerChainCacheSize, c.OptimizerChainCacheSize)
	assert.Equal(t, DefaultSiteMaskPublishKey, c.SiteMaskPublishKey)
	assert.Equal(t, DefaultMaxBatchSize, c.MaxBatchSize)
	assert.Equal(t, status.OptimizerChain{"JobPath", "JobSanity"}, c.OptimizerChain())
}

func TestCheckConfig_ReportsEverything(t *testing.T) {
	c := JobStateConfiguration{MaxRescheduling: -1, DefaultCPUTime: -5}
	err := CheckConfig(&c)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	// MaxRescheduling, DefaultCPUTime, chain, both windows, postgres and port
	assert.Len(t, merr.Errors, 7)
}

func TestShippedConfig(t *testing.T) {
	t.Setenv("JOBSTATE_HTTPPORT", "9090")

	var c JobStateConfiguration
	_, err := common.LoadConfig(&c, "../../../config/jobstate", nil)
	require.NoError(t, err)
	require.NoError(t, CheckConfig(&c))

	assert.Equal(t, uint16(9090), c.HttpPort)
	assert.Equal(t, "localhost", c.Postgres.Connection["host"])
	assert.Equal(t, 30*time.Minute, c.Postgres.PoolMaxConnLifetime)
	assert.Equal(t, []string{"el8", "el9"}, c.PlatformCompatibility["el8"])
	assert.Equal(t, status.OptimizerChain{"JobPath", "JobSanity", "InputData", "JobScheduling"}, c.OptimizerChain())
	assert.False(t, c.Redis.Enabled())
}
